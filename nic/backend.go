// Package nic implements the generic NIC operation set over the AF_XDP
// facility.
//
// The backend owns fixed arenas of virtual-interface slots and protection
// domains, sized at hardware-init time and addressed by small integer
// handles. Every lookup is bounds-checked; all control-plane entry points
// serialize on the backend mutex. The kernel facility is reached only
// through the capability interfaces in the root package, so the backend
// itself never issues a syscall.
package nic

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/buftab"
	"github.com/virthw/xsknic/pagemap"
)

// vi is one virtual-interface slot. A slot exists for the NIC's whole
// lifetime; a present socket marks it active.
type vi struct {
	sock        xsknic.Socket
	ownerID     int
	rxqCapacity int
	txqCapacity int
	bindFlags   xsknic.BindFlags

	kernelOffsets   xsknic.OffsetsBlock
	userOffsetsPage *pagemap.Page
}

func (v *vi) reset() {
	*v = vi{}
}

// Capabilities describes the hardware features the backend reports to the
// generic NIC layer. The shim has no PIO, no TX alternatives and no RX
// prefix; zero-copy RX is advertised unconditionally.
type Capabilities struct {
	RXZeroCopy  bool
	RXPrefixLen int
	PIOCount    int
	PIOSize     int
	TXAltVFIFOs int
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger.With("component", "nic")
	}
}

// WithBindFlags adds flags to every socket bind, e.g. need-wakeup.
func WithBindFlags(flags xsknic.BindFlags) Option {
	return func(b *Backend) {
		b.extraBind = flags
	}
}

// Backend drives one underlying device through a Facility capability.
type Backend struct {
	mu        sync.Mutex
	logger    *slog.Logger
	fac       xsknic.Facility
	extraBind xsknic.BindFlags

	attach xsknic.Attachment
	mac    net.HardwareAddr
	vis    []vi
	pds    []*buftab.Domain
}

// New returns a backend over fac. InitHardware must run before any queue
// or buffer-table operation.
func New(fac xsknic.Facility, opts ...Option) *Backend {
	b := &Backend{
		fac:    fac,
		logger: slog.Default().With("component", "nic"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitHardware sizes the VI and protection-domain arenas, attaches the
// redirect filter to the device and reports the device MAC.
func (b *Backend) InitHardware(viLimit int) (net.HardwareAddr, error) {
	if viLimit <= 0 {
		return nil, xsknic.RangeError{What: "vi limit", Value: int64(viLimit), Limit: 1 << 31}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attach != nil {
		return nil, fmt.Errorf("hardware already initialised: %w", xsknic.ErrBusy)
	}

	attach, err := b.fac.AttachRedirect(viLimit)
	if err != nil {
		return nil, fmt.Errorf("attach redirect filter: %w", err)
	}

	b.attach = attach
	b.vis = make([]vi, viLimit)
	b.pds = make([]*buftab.Domain, buftab.MaxDomains)
	for i := range b.pds {
		b.pds[i] = buftab.NewDomain()
	}
	b.mac = b.fac.HardwareAddr()

	b.logger.Info("hardware initialised",
		"ifindex", b.fac.Ifindex(),
		"mac", b.mac.String(),
		"vi_limit", viLimit)
	return b.mac, nil
}

// ReleaseHardware detaches the redirect filter and tears down any VIs
// still active. VIs release before their protection domains; domains are
// dropped with the arena.
func (b *Backend) ReleaseHardware() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.vis {
		b.releaseVI(i)
	}
	if b.attach != nil {
		if err := b.attach.Close(); err != nil {
			b.logger.Warn("detach redirect filter", "error", err)
		}
		b.attach = nil
	}
	b.vis = nil
	b.pds = nil
	b.logger.Info("hardware released")
}

// Capabilities reports the shim's hardware feature set.
func (b *Backend) Capabilities() Capabilities {
	return Capabilities{RXZeroCopy: true}
}

// viByInstance resolves a VI slot. The caller must hold b.mu.
func (b *Backend) viByInstance(instance int) *vi {
	if b.attach == nil || instance < 0 || instance >= len(b.vis) {
		return nil
	}
	return &b.vis[instance]
}

// pdByOwner resolves a protection domain. The caller must hold b.mu.
func (b *Backend) pdByOwner(owner int) *buftab.Domain {
	if b.attach == nil || owner < 0 || owner >= len(b.pds) {
		return nil
	}
	return b.pds[owner]
}

// RXQInit records the owner and RX capacity for a VI and derives its bind
// mode from the queue flags.
func (b *Backend) RXQInit(instance, owner, capacity int, flags xsknic.QueueFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.viByInstance(instance)
	if v == nil {
		return fmt.Errorf("rx queue init instance %d: %w", instance, xsknic.ErrNoSuchDevice)
	}

	v.ownerID = owner
	v.rxqCapacity = capacity
	if flags&xsknic.QueueRXZeroCopy != 0 {
		v.bindFlags |= xsknic.BindZeroCopy
	} else {
		v.bindFlags |= xsknic.BindCopy
	}
	return nil
}

// TXQInit records the owner and TX capacity for a VI.
func (b *Backend) TXQInit(instance, owner, capacity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.viByInstance(instance)
	if v == nil {
		return fmt.Errorf("tx queue init instance %d: %w", instance, xsknic.ErrNoSuchDevice)
	}

	v.ownerID = owner
	v.txqCapacity = capacity
	return nil
}

// QueueDisable releases a VI back to its unbound state: the offsets page
// is dropped, the control handle closed if present, the record zeroed.
// Safe to call on a partially activated VI.
func (b *Backend) QueueDisable(instance int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.viByInstance(instance) == nil {
		return fmt.Errorf("queue disable instance %d: %w", instance, xsknic.ErrNoSuchDevice)
	}
	b.releaseVI(instance)
	return nil
}

// releaseVI is QueueDisable without the lookup. The caller must hold
// b.mu and have validated instance.
func (b *Backend) releaseVI(instance int) {
	v := &b.vis[instance]
	if v.sock != nil {
		if b.attach != nil {
			if err := b.attach.Remove(instance); err != nil {
				b.logger.Warn("remove redirect map entry", "instance", instance, "error", err)
			}
		}
		if err := v.sock.Close(); err != nil {
			b.logger.Warn("close socket", "instance", instance, "error", err)
		}
	}
	v.reset()
}

// VIMem returns the kernel-visible ring-offset block for a VI, or nil if
// the instance does not resolve.
func (b *Backend) VIMem(instance int) *xsknic.OffsetsBlock {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.viByInstance(instance)
	if v == nil {
		return nil
	}
	return &v.kernelOffsets
}

// BufferTableOrders lists the supported block orders.
func (b *Backend) BufferTableOrders() []int {
	return buftab.Orders()
}

// BufferTableAlloc allocates a buffer-table block against owner's
// protection domain.
func (b *Backend) BufferTableAlloc(owner, order int) (*buftab.Block, error) {
	b.mu.Lock()
	pd := b.pdByOwner(owner)
	b.mu.Unlock()
	if pd == nil {
		return nil, fmt.Errorf("buffer table alloc owner %d: %w", owner, xsknic.ErrNoSuchDevice)
	}
	return pd.Alloc(owner, order)
}

// BufferTableFree releases a block. A block whose encoded owner does not
// resolve to a live domain indicates caller misuse and is fatal.
func (b *Backend) BufferTableFree(block *buftab.Block) {
	b.mu.Lock()
	pd := b.pdByOwner(block.Owner())
	b.mu.Unlock()
	if pd == nil {
		panic(fmt.Sprintf("nic: buffer table free for unknown owner %d", block.Owner()))
	}
	pd.Free(block)
}

// BufferTableSet writes physical addresses for n entries of a block
// starting at first.
func (b *Backend) BufferTableSet(block *buftab.Block, first, n int, addrs []uint64) error {
	b.mu.Lock()
	pd := b.pdByOwner(block.Owner())
	b.mu.Unlock()
	if pd == nil {
		return fmt.Errorf("buffer table set owner %d: %w", block.Owner(), xsknic.ErrNoSuchDevice)
	}
	return pd.SetAddrs(block, first, n, addrs)
}

// BufferTableClear invalidates entries of a block. See
// buftab.Domain.ClearAddrs for why this does nothing.
func (b *Backend) BufferTableClear(block *buftab.Block, first, n int) {
	b.mu.Lock()
	pd := b.pdByOwner(block.Owner())
	b.mu.Unlock()
	if pd != nil {
		pd.ClearAddrs(block, first, n)
	}
}
