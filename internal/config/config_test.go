package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/archdev/internal/ports"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archdev.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.ListenAddress)
	assert.Equal(t, ports.DefaultSSHRange, cfg.SSHPorts)
	assert.Equal(t, ports.DefaultVNCRange, cfg.VNCPorts)
	assert.Equal(t, 10, cfg.PortAllocationAttempts)
	assert.Equal(t, 10*time.Minute, cfg.DispatchTimeout)
	assert.True(t, cfg.SSHStrictHostKey)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "vm", cfg.VMPrefix)
	assert.Equal(t, "omarchy", cfg.VMUser)
	assert.Empty(t, cfg.APIURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
fleet_path: /srv/fleet.yaml
local_host: box-1
ssh_port_min: 3000
ssh_port_max: 3010
dispatch_timeout: 90s
log_level: debug
`)
	t.Setenv("ARCHDEV_LOG_LEVEL", "warn")
	t.Setenv("ARCHDEV_VM_VCPUS", "8")
	t.Setenv("ARCHDEV_API_URL", "http://devbox:5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/fleet.yaml", cfg.FleetPath)
	assert.Equal(t, "box-1", cfg.LocalHost)
	assert.Equal(t, ports.Range{Min: 3000, Max: 3010}, cfg.SSHPorts)
	assert.Equal(t, 90*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, 8, cfg.VMVCPUs)
	assert.Equal(t, "http://devbox:5000", cfg.APIURL)
}

func TestLoadFromWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archdev.yaml"), []byte("vm_prefix: dev\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.VMPrefix)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"log level":   "log_level: loud\n",
		"log format":  "log_format: xml\n",
		"empty range": "vnc_port_min: 5999\nvnc_port_max: 5901\n",
		"attempts":    "port_allocation_attempts: 0\n",
		"timeout":     "dispatch_timeout: 0s\n",
		"concurrency": "list_concurrency: 0\n",
		"ssh port":    "ssh_port: 70000\n",
		"vcpus":       "vm_vcpus: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
