// Package descriptor renders libvirt domain definitions for sandbox VMs.
package descriptor

import (
	"fmt"
	"path"

	"libvirt.org/go/libvirtxml"

	"github.com/terabiome/archdev/internal/quantity"
)

const (
	DefaultVCPUs     = 4
	DefaultImageDir  = "/var/lib/libvirt/images"
	DefaultBridge    = "virbr0"
	DefaultVNCListen = "127.0.0.1"
)

// Builder holds the settings shared by every domain it renders.
type Builder struct {
	VCPUs    uint
	ImageDir string
	Bridge   string
}

func NewBuilder(vcpus uint, imageDir, bridge string) *Builder {
	if vcpus == 0 {
		vcpus = DefaultVCPUs
	}
	if imageDir == "" {
		imageDir = DefaultImageDir
	}
	if bridge == "" {
		bridge = DefaultBridge
	}
	return &Builder{VCPUs: vcpus, ImageDir: imageDir, Bridge: bridge}
}

// ImagePath is where the VM's qcow2 disk lives on its host.
func (b *Builder) ImagePath(name string) string {
	return path.Join(b.ImageDir, name+".qcow2")
}

// Build renders the domain XML. The VNC display only listens on loopback,
// it is meant to be reached through an SSH tunnel.
func (b *Builder) Build(name, memory string, vncPort int) (string, error) {
	memoryMiB, err := quantity.ParseMiB(memory)
	if err != nil {
		return "", err
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(memoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: b.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
			},
		},
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{
						Name: "qemu",
						Type: "qcow2",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{
							File: b.ImagePath(name),
						},
					},
					Target: &libvirtxml.DomainDiskTarget{
						Dev: "vda",
						Bus: "virtio",
					},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					Source: &libvirtxml.DomainInterfaceSource{
						Bridge: &libvirtxml.DomainInterfaceSourceBridge{
							Bridge: b.Bridge,
						},
					},
					Model: &libvirtxml.DomainInterfaceModel{
						Type: "virtio",
					},
				},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:   vncPort,
						Listen: DefaultVNCListen,
						Listeners: []libvirtxml.DomainGraphicListener{
							{
								Address: &libvirtxml.DomainGraphicListenerAddress{
									Address: DefaultVNCListen,
								},
							},
						},
					},
				},
			},
		},
	}

	xmlDoc, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal domain XML for %s: %w", name, err)
	}

	return xmlDoc, nil
}
