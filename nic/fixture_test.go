// Fakes implementing the root capability interfaces, so backend tests
// run without AF_XDP support or privileges.
package nic_test

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"

	"github.com/virthw/xsknic"
)

// testLogger discards output unless XSKNIC_TEST_VERBOSE is set.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	if os.Getenv("XSKNIC_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFacility struct {
	mac     net.HardwareAddr
	ifindex int

	openErr   error
	attachErr error

	opened     []*fakeSocket
	attachment *fakeAttachment
	nextFD     int
	nextBase   uintptr
}

func newFakeFacility() *fakeFacility {
	return &fakeFacility{
		mac:     net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		ifindex: 7,
		nextFD:  100,
		// Arbitrary page-aligned base for fake ring memory; each
		// mapping is carved above the previous one.
		nextBase: 0x7f00_0000_0000,
	}
}

func (f *fakeFacility) HardwareAddr() net.HardwareAddr { return f.mac }
func (f *fakeFacility) Ifindex() int                   { return f.ifindex }

func (f *fakeFacility) OpenSocket() (xsknic.Socket, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.nextFD++
	s := &fakeSocket{
		fac:       f,
		fd:        f.nextFD,
		ringSizes: make(map[xsknic.RingKind]int),
		layout: xsknic.MmapOffsets{
			RX:         xsknic.RingLayout{Producer: 0, Consumer: 64, Desc: 128},
			TX:         xsknic.RingLayout{Producer: 0, Consumer: 64, Desc: 128},
			Fill:       xsknic.RingLayout{Producer: 0, Consumer: 64, Desc: 128},
			Completion: xsknic.RingLayout{Producer: 0, Consumer: 64, Desc: 128},
		},
	}
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeFacility) AttachRedirect(maxEntries int) (xsknic.Attachment, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	f.attachment = &fakeAttachment{
		maxEntries: maxEntries,
		entries:    make(map[int]int),
	}
	return f.attachment, nil
}

type fakeAttachment struct {
	maxEntries int
	entries    map[int]int // instance -> socket fd
	updateErr  error
	closed     bool
}

func (a *fakeAttachment) Update(instance int, sock xsknic.Socket) error {
	if a.updateErr != nil {
		return a.updateErr
	}
	if instance < 0 || instance >= a.maxEntries {
		return errors.New("instance beyond map size")
	}
	a.entries[instance] = sock.FD()
	return nil
}

func (a *fakeAttachment) Remove(instance int) error {
	delete(a.entries, instance)
	return nil
}

func (a *fakeAttachment) Close() error {
	a.closed = true
	return nil
}

type umemReg struct {
	size      int64
	chunkSize uint32
	headroom  uint32
	src       xsknic.PageSource
}

type fakeSocket struct {
	fac *fakeFacility
	fd  int

	registered *umemReg
	ringSizes  map[xsknic.RingKind]int
	ringOrder  []xsknic.RingKind
	mappings   []*fakeMapping
	layout     xsknic.MmapOffsets

	bound     bool
	bindQueue int
	bindFlags xsknic.BindFlags
	closed    bool

	registerErr error
	ringSizeErr error
	bindErr     error
}

func (s *fakeSocket) FD() int { return s.fd }

func (s *fakeSocket) RegisterUmem(sizeBytes int64, chunkSize, headroom uint32, src xsknic.PageSource) error {
	if s.registerErr != nil {
		return s.registerErr
	}
	s.registered = &umemReg{size: sizeBytes, chunkSize: chunkSize, headroom: headroom, src: src}
	return nil
}

func (s *fakeSocket) SetRingSize(kind xsknic.RingKind, capacity int) error {
	if s.ringSizeErr != nil {
		return s.ringSizeErr
	}
	s.ringSizes[kind] = capacity
	s.ringOrder = append(s.ringOrder, kind)
	return nil
}

func (s *fakeSocket) MmapOffsets() (xsknic.MmapOffsets, error) {
	return s.layout, nil
}

func (s *fakeSocket) MapRing(kind xsknic.RingKind, sizeBytes int64) (xsknic.RingMapping, error) {
	pages := int((sizeBytes + xsknic.PageSize - 1) >> xsknic.PageShift)
	m := &fakeMapping{base: s.fac.nextBase, pages: pages}
	s.fac.nextBase += uintptr(pages) << xsknic.PageShift
	s.mappings = append(s.mappings, m)
	return m, nil
}

func (s *fakeSocket) Bind(queue int, flags xsknic.BindFlags) error {
	if s.bindErr != nil {
		return s.bindErr
	}
	s.bound = true
	s.bindQueue = queue
	s.bindFlags = flags
	return nil
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

type fakeMapping struct {
	base     uintptr
	pages    int
	unmapped bool
}

func (m *fakeMapping) Base() uintptr { return m.base }
func (m *fakeMapping) Pages() int    { return m.pages }
func (m *fakeMapping) Unmap() error {
	m.unmapped = true
	return nil
}
