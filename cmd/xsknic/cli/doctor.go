package cli

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/virthw/xsknic/xsk"
)

// DoctorCmd probes the host: can an AF_XDP socket be created, and does
// the configured device resolve.
type DoctorCmd struct{}

// Run executes the doctor command.
func (c *DoctorCmd) Run(cli *CLI) error {
	ok := true

	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		fmt.Printf("AF_XDP socket: FAIL (%v)\n", err)
		ok = false
	} else {
		unix.Close(fd)
		fmt.Println("AF_XDP socket: ok")
	}

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Printf("config %s: FAIL (%v)\n", cli.Config, err)
		return fmt.Errorf("host not ready")
	}
	fmt.Printf("config %s: ok\n", cli.Config)

	fac, err := xsk.Open(cfg.Device, xsk.WithNetns(cfg.Netns))
	if err != nil {
		fmt.Printf("device %s: FAIL (%v)\n", cfg.Device, err)
		ok = false
	} else {
		fmt.Printf("device %s: ok (ifindex %d, mac %s)\n",
			cfg.Device, fac.Ifindex(), fac.HardwareAddr())
	}

	if !ok {
		return fmt.Errorf("host not ready")
	}
	return nil
}
