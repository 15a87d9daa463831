// Package xsk is the kernel-facing realisation of the AF_XDP facility:
// device resolution, socket creation and classifier attachment. The nic
// backend consumes it through the capability interfaces in the root
// package and never reaches the syscall layer directly.
package xsk

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/redirect"
)

// Option configures a Facility.
type Option func(*Facility)

// WithLogger sets the facility logger. It is also handed down to the
// classifier attachment.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facility) {
		f.base = logger
		f.logger = logger.With("component", "xsk")
	}
}

// WithNetns scopes the device lookup and all socket and classifier
// operations to the network namespace at path.
func WithNetns(path string) Option {
	return func(f *Facility) {
		f.netnsPath = path
	}
}

// Facility is one resolved network device. It implements
// xsknic.Facility.
type Facility struct {
	base      *slog.Logger
	logger    *slog.Logger
	netnsPath string

	device  string
	ifindex int
	mac     net.HardwareAddr
}

// Open resolves device by name and returns a facility bound to it.
func Open(device string, opts ...Option) (*Facility, error) {
	f := &Facility{
		base:   slog.Default(),
		logger: slog.Default().With("component", "xsk"),
		device: device,
	}
	for _, opt := range opts {
		opt(f)
	}

	err := inNetns(f.netnsPath, func() error {
		link, err := netlink.LinkByName(device)
		if err != nil {
			return fmt.Errorf("resolve device %s: %w: %v", device, xsknic.ErrNoSuchDevice, err)
		}
		attrs := link.Attrs()
		f.ifindex = attrs.Index
		f.mac = append(net.HardwareAddr(nil), attrs.HardwareAddr...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("device resolved",
		"device", device,
		"ifindex", f.ifindex,
		"mac", f.mac.String(),
		"netns", f.netnsPath)
	return f, nil
}

// HardwareAddr returns the device MAC.
func (f *Facility) HardwareAddr() net.HardwareAddr { return f.mac }

// Ifindex returns the device interface index.
func (f *Facility) Ifindex() int { return f.ifindex }

// OpenSocket creates an AF_XDP socket in the device's namespace.
func (f *Facility) OpenSocket() (xsknic.Socket, error) {
	var conn *Conn
	err := inNetns(f.netnsPath, func() error {
		var err error
		conn, err = newConn(f.ifindex, f.logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// AttachRedirect installs the steering classifier on the device with a
// socket map covering maxEntries queues.
func (f *Facility) AttachRedirect(maxEntries int) (xsknic.Attachment, error) {
	var a *redirect.Attachment
	err := inNetns(f.netnsPath, func() error {
		var err error
		a, err = redirect.Attach(f.ifindex, maxEntries, redirect.WithLogger(f.base))
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
