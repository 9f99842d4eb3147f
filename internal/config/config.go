package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/terabiome/archdev/internal/descriptor"
	"github.com/terabiome/archdev/internal/dispatch"
	"github.com/terabiome/archdev/internal/infrastructure/disk"
	"github.com/terabiome/archdev/internal/infrastructure/libvirt"
	"github.com/terabiome/archdev/internal/naming"
	"github.com/terabiome/archdev/internal/ports"
	"github.com/terabiome/archdev/internal/service"
)

type Config struct {
	ListenAddress string
	APIURL        string
	FleetPath     string
	LocalHost     string

	SSHUser          string
	SSHKeyPath       string
	SSHKnownHosts    string
	SSHStrictHostKey bool
	SSHPort          int
	DispatchTimeout  time.Duration

	SSHPorts               ports.Range
	VNCPorts               ports.Range
	PortAllocationAttempts int
	ReservationDir         string

	ImageDir   string
	BaseImage  string
	LibvirtURI string
	VMPrefix   string
	VMVCPUs    int
	VMBridge   string
	VMUser     string

	ListConcurrency int

	LogLevel         string
	LogFormat        string
	TelemetryEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_address", ":5000")
	v.SetDefault("api_url", "")
	v.SetDefault("fleet_path", "/etc/archdev/fleet.yaml")
	v.SetDefault("local_host", "")

	v.SetDefault("ssh_user", "root")
	v.SetDefault("ssh_key_path", "~/.ssh/id_ed25519")
	v.SetDefault("ssh_known_hosts", "~/.ssh/known_hosts")
	v.SetDefault("ssh_strict_host_key", true)
	v.SetDefault("ssh_port", 22)
	v.SetDefault("dispatch_timeout", dispatch.DefaultTimeout)

	v.SetDefault("ssh_port_min", ports.DefaultSSHRange.Min)
	v.SetDefault("ssh_port_max", ports.DefaultSSHRange.Max)
	v.SetDefault("vnc_port_min", ports.DefaultVNCRange.Min)
	v.SetDefault("vnc_port_max", ports.DefaultVNCRange.Max)
	v.SetDefault("port_allocation_attempts", ports.DefaultMaxAttempts)
	v.SetDefault("reservation_dir", ports.DefaultReservationDir)

	v.SetDefault("image_dir", descriptor.DefaultImageDir)
	v.SetDefault("base_image", disk.DefaultBaseImage)
	v.SetDefault("libvirt_uri", libvirt.DefaultURI)
	v.SetDefault("vm_prefix", naming.DefaultPrefix)
	v.SetDefault("vm_vcpus", descriptor.DefaultVCPUs)
	v.SetDefault("vm_bridge", descriptor.DefaultBridge)
	v.SetDefault("vm_user", "omarchy")

	v.SetDefault("list_concurrency", service.DefaultListConcurrency)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("telemetry_enabled", false)
}

// Load reads configuration from defaults, an optional archdev.yaml and
// ARCHDEV_* environment variables, in increasing order of precedence.
// A non-empty path must point at an existing file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("archdev")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/archdev")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("archdev")
	v.AutomaticEnv()

	cfg := &Config{
		ListenAddress: v.GetString("listen_address"),
		APIURL:        v.GetString("api_url"),
		FleetPath:     v.GetString("fleet_path"),
		LocalHost:     v.GetString("local_host"),

		SSHUser:          v.GetString("ssh_user"),
		SSHKeyPath:       v.GetString("ssh_key_path"),
		SSHKnownHosts:    v.GetString("ssh_known_hosts"),
		SSHStrictHostKey: v.GetBool("ssh_strict_host_key"),
		SSHPort:          v.GetInt("ssh_port"),
		DispatchTimeout:  v.GetDuration("dispatch_timeout"),

		SSHPorts:               ports.Range{Min: v.GetInt("ssh_port_min"), Max: v.GetInt("ssh_port_max")},
		VNCPorts:               ports.Range{Min: v.GetInt("vnc_port_min"), Max: v.GetInt("vnc_port_max")},
		PortAllocationAttempts: v.GetInt("port_allocation_attempts"),
		ReservationDir:         v.GetString("reservation_dir"),

		ImageDir:   v.GetString("image_dir"),
		BaseImage:  v.GetString("base_image"),
		LibvirtURI: v.GetString("libvirt_uri"),
		VMPrefix:   v.GetString("vm_prefix"),
		VMVCPUs:    v.GetInt("vm_vcpus"),
		VMBridge:   v.GetString("vm_bridge"),
		VMUser:     v.GetString("vm_user"),

		ListConcurrency: v.GetInt("list_concurrency"),

		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		TelemetryEnabled: v.GetBool("telemetry_enabled"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat)
	}

	if c.FleetPath == "" {
		return errors.New("fleet_path is required")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch_timeout must be positive, got %s", c.DispatchTimeout)
	}
	if c.SSHPort < 1 || c.SSHPort > 65535 {
		return fmt.Errorf("invalid ssh_port: %d", c.SSHPort)
	}

	if err := c.SSHPorts.Validate(); err != nil {
		return fmt.Errorf("ssh port range: %w", err)
	}
	if err := c.VNCPorts.Validate(); err != nil {
		return fmt.Errorf("vnc port range: %w", err)
	}
	if c.PortAllocationAttempts < 1 {
		return fmt.Errorf("port_allocation_attempts must be at least 1, got %d", c.PortAllocationAttempts)
	}
	if c.ReservationDir == "" {
		return errors.New("reservation_dir is required")
	}

	if c.VMVCPUs < 1 {
		return fmt.Errorf("vm_vcpus must be at least 1, got %d", c.VMVCPUs)
	}
	if c.ListConcurrency < 1 {
		return fmt.Errorf("list_concurrency must be at least 1, got %d", c.ListConcurrency)
	}

	return nil
}
