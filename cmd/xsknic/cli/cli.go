// Package cli implements the xsknic command set.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/virthw/xsknic/config"
	"github.com/virthw/xsknic/logging"
)

// CLI is the root command structure for xsknic.
type CLI struct {
	Config string `name:"config" help:"Config file path." default:"/etc/xsknic/xsknic.yaml"`
	Log    string `name:"log" help:"Log spec (e.g., 'info,nic=debug')." env:"XSKNIC_LOG"`

	Up     UpCmd     `cmd:"" help:"Attach the shim to the device and serve queues until interrupted."`
	Doctor DoctorCmd `cmd:"" help:"Probe the host for AF_XDP support."`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("xsknic"),
		kong.Description("AF_XDP NIC shim."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	}
}

// LoadConfig loads the configuration file named on the command line.
func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// Logger builds the component-filtered logger. The --log flag wins over
// the environment, which wins over the config file.
func (c *CLI) Logger(cfg config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		CLISpec:    c.Log,
		ConfigSpec: cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, nil
}
