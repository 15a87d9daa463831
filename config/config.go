// Package config loads the shim's runtime configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/virthw/xsknic"
)

// Mode selects how frames move between kernel and sockets.
type Mode string

const (
	// ModeCopy forces the copy path, which every driver supports.
	ModeCopy Mode = "copy"
	// ModeZeroCopy requires driver zero-copy support.
	ModeZeroCopy Mode = "zerocopy"
)

// Config is the top-level runtime configuration.
type Config struct {
	// Device is the network interface the shim drives.
	Device string `yaml:"device"`
	// Netns optionally scopes the device lookup to a named network
	// namespace path, e.g. /var/run/netns/blue.
	Netns string `yaml:"netns"`
	// VILimit caps the number of virtual interfaces and sizes the
	// redirect map.
	VILimit int `yaml:"vi_limit"`
	// ChunkSize is the umem chunk size in bytes. Must divide the
	// page size.
	ChunkSize uint32 `yaml:"chunk_size"`
	// Headroom is the per-chunk headroom in bytes.
	Headroom uint32 `yaml:"headroom"`
	// Mode is copy or zerocopy.
	Mode Mode `yaml:"mode"`
	// NeedWakeup opts into the need-wakeup bind flag.
	NeedWakeup bool `yaml:"need_wakeup"`
	// Log is a verbosity spec, e.g. "info,nic=debug".
	Log string `yaml:"log"`
}

// Default returns the configuration used when a field is unset.
func Default() Config {
	return Config{
		VILimit:   16,
		ChunkSize: 2048,
		Mode:      ModeCopy,
	}
}

// Load reads and validates the configuration at path. Unset fields take
// their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device must be set")
	}
	if c.VILimit <= 0 {
		return fmt.Errorf("vi_limit must be positive, got %d", c.VILimit)
	}
	if c.ChunkSize == 0 || c.ChunkSize > xsknic.PageSize || xsknic.PageSize%c.ChunkSize != 0 {
		return fmt.Errorf("chunk_size %d must be a divisor of the page size", c.ChunkSize)
	}
	if c.Headroom > c.ChunkSize {
		return fmt.Errorf("headroom %d exceeds chunk_size %d", c.Headroom, c.ChunkSize)
	}
	switch c.Mode {
	case ModeCopy, ModeZeroCopy:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeCopy, ModeZeroCopy, c.Mode)
	}
	return nil
}

// BindFlags returns the socket bind flags the configuration implies.
func (c *Config) BindFlags() xsknic.BindFlags {
	var flags xsknic.BindFlags
	if c.NeedWakeup {
		flags |= xsknic.BindNeedWakeup
	}
	return flags
}
