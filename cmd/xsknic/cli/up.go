package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/config"
	"github.com/virthw/xsknic/nic"
	"github.com/virthw/xsknic/pagemap"
	"github.com/virthw/xsknic/xsk"
)

// UpCmd attaches the shim to the configured device, activates one VI
// per hardware queue and runs until interrupted.
type UpCmd struct {
	Queues int `name:"queues" help:"Number of device queues to activate." default:"1"`
	RXSize int `name:"rx-size" help:"RX ring capacity per queue." default:"2048"`
	TXSize int `name:"tx-size" help:"TX ring capacity per queue." default:"2048"`
}

// Run executes the up command.
func (c *UpCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := cli.Logger(cfg)
	if err != nil {
		return err
	}

	if c.Queues <= 0 || c.Queues > cfg.VILimit {
		return fmt.Errorf("queues must be within 1..%d, got %d", cfg.VILimit, c.Queues)
	}

	fac, err := xsk.Open(cfg.Device,
		xsk.WithLogger(logger),
		xsk.WithNetns(cfg.Netns))
	if err != nil {
		return err
	}

	backend := nic.New(fac,
		nic.WithLogger(logger),
		nic.WithBindFlags(cfg.BindFlags()))

	mac, err := backend.InitHardware(cfg.VILimit)
	if err != nil {
		return err
	}
	defer backend.ReleaseHardware()

	var queueFlags xsknic.QueueFlags
	if cfg.Mode == config.ModeZeroCopy {
		queueFlags |= xsknic.QueueRXZeroCopy
	}

	for q := 0; q < c.Queues; q++ {
		if err := backend.RXQInit(q, q, c.RXSize, queueFlags); err != nil {
			return err
		}
		if err := backend.TXQInit(q, q, c.TXSize); err != nil {
			return err
		}
		if _, err := backend.VIInit(q, cfg.ChunkSize, cfg.Headroom, pagemap.New()); err != nil {
			return fmt.Errorf("activate queue %d: %w", q, err)
		}
	}

	fmt.Printf("xsknic up on %s (%s), %d queue(s)\n", cfg.Device, mac, c.Queues)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	return nil
}
