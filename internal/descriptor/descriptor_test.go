package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libvirt.org/go/libvirtxml"

	"github.com/terabiome/archdev/internal/errdefs"
)

func TestBuild(t *testing.T) {
	b := NewBuilder(0, "", "")

	xmlDoc, err := b.Build("vm-8g-50g-a1b2c3", "8G", 5907)
	require.NoError(t, err)

	var domain libvirtxml.Domain
	require.NoError(t, domain.Unmarshal(xmlDoc))

	assert.Equal(t, "kvm", domain.Type)
	assert.Equal(t, "vm-8g-50g-a1b2c3", domain.Name)

	require.NotNil(t, domain.Memory)
	assert.Equal(t, uint(8192), domain.Memory.Value)
	assert.Equal(t, "MiB", domain.Memory.Unit)

	require.NotNil(t, domain.VCPU)
	assert.Equal(t, uint(4), domain.VCPU.Value)

	require.NotNil(t, domain.OS)
	assert.Equal(t, "hvm", domain.OS.Type.Type)
	require.Len(t, domain.OS.BootDevices, 1)
	assert.Equal(t, "hd", domain.OS.BootDevices[0].Dev)

	require.NotNil(t, domain.Devices)
	require.Len(t, domain.Devices.Disks, 1)
	disk := domain.Devices.Disks[0]
	assert.Equal(t, "qcow2", disk.Driver.Type)
	assert.Equal(t, "/var/lib/libvirt/images/vm-8g-50g-a1b2c3.qcow2", disk.Source.File.File)
	assert.Equal(t, "vda", disk.Target.Dev)
	assert.Equal(t, "virtio", disk.Target.Bus)

	require.Len(t, domain.Devices.Interfaces, 1)
	assert.Equal(t, "virbr0", domain.Devices.Interfaces[0].Source.Bridge.Bridge)

	require.Len(t, domain.Devices.Graphics, 1)
	vnc := domain.Devices.Graphics[0].VNC
	require.NotNil(t, vnc)
	assert.Equal(t, 5907, vnc.Port)
	assert.Equal(t, "127.0.0.1", vnc.Listen)
}

func TestBuildUsesBuilderSettings(t *testing.T) {
	b := NewBuilder(2, "/srv/images", "br0")

	xmlDoc, err := b.Build("vm-2g-10g-000000", "2048M", 5901)
	require.NoError(t, err)

	var domain libvirtxml.Domain
	require.NoError(t, domain.Unmarshal(xmlDoc))

	assert.Equal(t, uint(2048), domain.Memory.Value)
	assert.Equal(t, uint(2), domain.VCPU.Value)
	assert.Equal(t, "/srv/images/vm-2g-10g-000000.qcow2", domain.Devices.Disks[0].Source.File.File)
	assert.Equal(t, "br0", domain.Devices.Interfaces[0].Source.Bridge.Bridge)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(0, "", "")

	first, err := b.Build("vm-8g-50g-a1b2c3", "8G", 5907)
	require.NoError(t, err)
	second, err := b.Build("vm-8g-50g-a1b2c3", "8G", 5907)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildRejectsInvalidMemory(t *testing.T) {
	_, err := NewBuilder(0, "", "").Build("vm-x", "lots", 5901)
	assert.ErrorIs(t, err, errdefs.ErrInvalidQuantity)
}
