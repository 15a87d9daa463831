package xsk

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/virthw/xsknic"
)

// Conn is one AF_XDP socket. It implements xsknic.Socket.
//
// The umem backing region is an anonymous mapping owned by the socket
// and lives until Close; the kernel holds page references to it for as
// long as the socket exists.
type Conn struct {
	logger  *slog.Logger
	fd      int
	ifindex int
	umem    []byte
}

func newConn(ifindex int, logger *slog.Logger) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("create AF_XDP socket: %w", err)
	}
	return &Conn{logger: logger, fd: fd, ifindex: ifindex}, nil
}

// FD returns the socket descriptor.
func (c *Conn) FD() int { return c.fd }

// RegisterUmem backs the socket with a zero-copy region of sizeBytes,
// carved into chunkSize chunks with headroom bytes reserved per chunk.
// The region is sized from src's populated page range; a domain with no
// pages yet still registers a single page so ring setup can proceed.
func (c *Conn) RegisterUmem(sizeBytes int64, chunkSize, headroom uint32, src xsknic.PageSource) error {
	if c.umem != nil {
		return fmt.Errorf("umem already registered: %w", xsknic.ErrBusy)
	}
	if sizeBytes < xsknic.PageSize {
		sizeBytes = xsknic.PageSize
	}

	mem, err := unix.Mmap(-1, 0, int(sizeBytes),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("map umem region of %d bytes: %w", sizeBytes, err)
	}

	reg := unix.XDPUmemReg{
		Addr:     uint64(uintptr(unsafe.Pointer(&mem[0]))),
		Len:      uint64(len(mem)),
		Size:     chunkSize,
		Headroom: headroom,
	}
	if _, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(c.fd),
		unix.SOL_XDP, unix.XDP_UMEM_REG,
		uintptr(unsafe.Pointer(&reg)), unsafe.Sizeof(reg), 0); errno != 0 {
		unix.Munmap(mem)
		return fmt.Errorf("register umem: %w", errno)
	}

	c.umem = mem
	c.logger.Debug("umem registered",
		"bytes", sizeBytes,
		"chunk_size", chunkSize,
		"headroom", headroom,
		"pages", src.UsedPageCount())
	return nil
}

func ringSockopt(kind xsknic.RingKind) int {
	switch kind {
	case xsknic.RXRing:
		return unix.XDP_RX_RING
	case xsknic.TXRing:
		return unix.XDP_TX_RING
	case xsknic.FillRing:
		return unix.XDP_UMEM_FILL_RING
	case xsknic.CompletionRing:
		return unix.XDP_UMEM_COMPLETION_RING
	}
	panic(fmt.Sprintf("xsk: unknown ring kind %d", kind))
}

func ringPgoff(kind xsknic.RingKind) int64 {
	switch kind {
	case xsknic.RXRing:
		return unix.XDP_PGOFF_RX_RING
	case xsknic.TXRing:
		return unix.XDP_PGOFF_TX_RING
	case xsknic.FillRing:
		return unix.XDP_UMEM_PGOFF_FILL_RING
	case xsknic.CompletionRing:
		return unix.XDP_UMEM_PGOFF_COMPLETION_RING
	}
	panic(fmt.Sprintf("xsk: unknown ring kind %d", kind))
}

// SetRingSize negotiates the descriptor count for one ring.
func (c *Conn) SetRingSize(kind xsknic.RingKind, capacity int) error {
	if err := unix.SetsockoptInt(c.fd, unix.SOL_XDP, ringSockopt(kind), capacity); err != nil {
		return fmt.Errorf("set %s ring size %d: %w", kind, capacity, err)
	}
	return nil
}

// MmapOffsets reports the kernel's ring layout for this socket.
func (c *Conn) MmapOffsets() (xsknic.MmapOffsets, error) {
	var off unix.XDPMmapOffsets
	vallen := uint32(unsafe.Sizeof(off))
	if _, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(c.fd),
		unix.SOL_XDP, unix.XDP_MMAP_OFFSETS,
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&vallen)), 0); errno != 0 {
		return xsknic.MmapOffsets{}, fmt.Errorf("query ring layout: %w", errno)
	}

	layout := func(r unix.XDPRingOffset) xsknic.RingLayout {
		return xsknic.RingLayout{
			Producer: r.Producer,
			Consumer: r.Consumer,
			Desc:     r.Desc,
			Flags:    r.Flags,
		}
	}
	return xsknic.MmapOffsets{
		RX:         layout(off.Rx),
		TX:         layout(off.Tx),
		Fill:       layout(off.Fr),
		Completion: layout(off.Cr),
	}, nil
}

// MapRing maps kind's ring memory into the process.
func (c *Conn) MapRing(kind xsknic.RingKind, sizeBytes int64) (xsknic.RingMapping, error) {
	buf, err := unix.Mmap(c.fd, ringPgoff(kind), int(sizeBytes),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("map %s ring (%d bytes): %w", kind, sizeBytes, err)
	}
	return &ringMapping{buf: buf}, nil
}

// sockaddrFlags translates facility bind flags to their AF_XDP wire
// values.
func sockaddrFlags(flags xsknic.BindFlags) uint16 {
	var f uint16
	if flags&xsknic.BindSharedUmem != 0 {
		f |= unix.XDP_SHARED_UMEM
	}
	if flags&xsknic.BindCopy != 0 {
		f |= unix.XDP_COPY
	}
	if flags&xsknic.BindZeroCopy != 0 {
		f |= unix.XDP_ZEROCOPY
	}
	if flags&xsknic.BindNeedWakeup != 0 {
		f |= unix.XDP_USE_NEED_WAKEUP
	}
	return f
}

// Bind attaches the socket to the device queue.
func (c *Conn) Bind(queue int, flags xsknic.BindFlags) error {
	sa := unix.SockaddrXDP{
		Flags:   sockaddrFlags(flags),
		Ifindex: uint32(c.ifindex),
		QueueID: uint32(queue),
	}
	if err := unix.Bind(c.fd, &sa); err != nil {
		return fmt.Errorf("bind to ifindex %d queue %d: %w", c.ifindex, queue, err)
	}
	return nil
}

// Close releases the umem backing and the socket.
func (c *Conn) Close() error {
	if c.umem != nil {
		if err := unix.Munmap(c.umem); err != nil {
			c.logger.Warn("unmap umem region", "error", err)
		}
		c.umem = nil
	}
	if c.fd >= 0 {
		if err := unix.Close(c.fd); err != nil {
			return fmt.Errorf("close socket: %w", err)
		}
		c.fd = -1
	}
	return nil
}

type ringMapping struct {
	buf []byte
}

func (m *ringMapping) Base() uintptr {
	return uintptr(unsafe.Pointer(&m.buf[0]))
}

func (m *ringMapping) Pages() int {
	return int((int64(len(m.buf)) + xsknic.PageSize - 1) >> xsknic.PageShift)
}

func (m *ringMapping) Unmap() error {
	return unix.Munmap(m.buf)
}
