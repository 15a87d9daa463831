// Package redirect owns the kernel side of packet steering: the socket
// map, the classifier program and its link to the device. One attachment
// exists per device for the backend's whole lifetime; per-queue sockets
// come and go through map updates.
package redirect

import (
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"github.com/virthw/xsknic"
)

// Option configures an attachment.
type Option func(*Attachment)

// WithLogger sets the attachment logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Attachment) {
		a.logger = logger.With("component", "redirect")
	}
}

// Attachment is a loaded classifier bound to one device, together with
// the socket map it steers into. It implements xsknic.Attachment.
type Attachment struct {
	logger  *slog.Logger
	sockets *ebpf.Map
	prog    *ebpf.Program
	link    link.Link
}

// Attach builds the socket map and classifier for a device and installs
// the classifier on ifindex. maxEntries bounds the queue numbers the map
// can hold and must cover the device's queue count.
func Attach(ifindex, maxEntries int, opts ...Option) (*Attachment, error) {
	a := &Attachment{
		logger: slog.Default().With("component", "redirect"),
	}
	for _, opt := range opts {
		opt(a)
	}

	sockets, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "xsks_map",
		Type:       ebpf.XSKMap,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: uint32(maxEntries),
	})
	if err != nil {
		return nil, fmt.Errorf("create socket map: %w", err)
	}
	a.sockets = sockets

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "xsknic_steer",
		Type:         ebpf.XDP,
		Instructions: classifier(sockets.FD()),
		License:      "Dual BSD/GPL",
	})
	if err != nil {
		sockets.Close()
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	a.prog = prog

	lnk, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
	})
	if err != nil {
		prog.Close()
		sockets.Close()
		return nil, fmt.Errorf("attach classifier to ifindex %d: %w", ifindex, err)
	}
	a.link = lnk

	a.logger.Info("classifier attached", "ifindex", ifindex, "max_entries", maxEntries)
	return a, nil
}

// Update installs sock's descriptor in the map slot for instance, making
// the classifier steer that queue's traffic to the socket.
func (a *Attachment) Update(instance int, sock xsknic.Socket) error {
	if err := a.sockets.Put(uint32(instance), uint32(sock.FD())); err != nil {
		return fmt.Errorf("install socket in map slot %d: %w", instance, err)
	}
	a.logger.Debug("socket installed", "instance", instance, "fd", sock.FD())
	return nil
}

// Remove clears the map slot for instance. Traffic on that queue falls
// back to the kernel stack.
func (a *Attachment) Remove(instance int) error {
	if err := a.sockets.Delete(uint32(instance)); err != nil {
		return fmt.Errorf("clear map slot %d: %w", instance, err)
	}
	a.logger.Debug("socket removed", "instance", instance)
	return nil
}

// Close detaches the classifier and releases the map and program. The
// first failure wins; the remaining objects are still released.
func (a *Attachment) Close() error {
	var firstErr error
	if a.link != nil {
		if err := a.link.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("detach classifier: %w", err)
		}
		a.link = nil
	}
	if a.prog != nil {
		if err := a.prog.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close classifier: %w", err)
		}
		a.prog = nil
	}
	if a.sockets != nil {
		if err := a.sockets.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close socket map: %w", err)
		}
		a.sockets = nil
	}
	return firstErr
}
