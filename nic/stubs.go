package nic

import (
	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/buftab"
)

// The generic NIC operation table expects these entry points to exist.
// None of them have an AF_XDP realisation; they fail uniformly with
// ErrNotSupported so the generic layer can distinguish "shim" from
// "broken".

// EventQueueEnable would arm a hardware event queue.
func (b *Backend) EventQueueEnable(evq, size int, interrupting bool) error {
	return xsknic.ErrNotSupported
}

// WakeupRequest would ring a hardware doorbell; the AF_XDP wakeup path
// goes through the socket instead, so this is a no-op.
func (b *Backend) WakeupRequest(instance, rptr int) {
}

// SWEvent would post a software event to an event queue.
func (b *Backend) SWEvent(data, evq int) error {
	return xsknic.ErrNotSupported
}

// TXAltAlloc would reserve TX alternative FIFOs.
func (b *Backend) TXAltAlloc(instance, numAlts, bufSpace int) ([]int, error) {
	return nil, xsknic.ErrNotSupported
}

// TXAltFree would release TX alternative FIFOs.
func (b *Backend) TXAltFree(instance int, altIDs []int) error {
	return xsknic.ErrNotSupported
}

// FlushTXDMAChannel would flush a TX DMA queue.
func (b *Backend) FlushTXDMAChannel(instance int) error {
	return xsknic.ErrNotSupported
}

// FlushRXDMAChannel would flush an RX DMA queue.
func (b *Backend) FlushRXDMAChannel(instance int) error {
	return xsknic.ErrNotSupported
}

// BufferTableRealloc would rebuild a block after an NIC reset.
func (b *Backend) BufferTableRealloc(block *buftab.Block) error {
	return xsknic.ErrNotSupported
}

// SetPortSniff would mirror received traffic to a VI.
func (b *Backend) SetPortSniff(instance int, enable, promiscuous bool) error {
	return xsknic.ErrNotSupported
}

// SetTXPortSniff would mirror transmitted traffic to a VI.
func (b *Backend) SetTXPortSniff(instance int, enable bool) error {
	return xsknic.ErrNotSupported
}

// RXErrorStats would report per-VI RX error counters.
func (b *Backend) RXErrorStats(instance int, reset bool) ([]uint32, error) {
	return nil, xsknic.ErrNotSupported
}

// LicenseCheck would query a licensed feature bit.
func (b *Backend) LicenseCheck(feature uint32) (bool, error) {
	return false, xsknic.ErrNotSupported
}

// LicenseChallenge would run the v1 license challenge protocol.
func (b *Backend) LicenseChallenge(feature uint32, challenge []byte) ([]byte, error) {
	return nil, xsknic.ErrNotSupported
}

// V3LicenseCheck would query a v3 application license.
func (b *Backend) V3LicenseCheck(appID uint64) (bool, error) {
	return false, xsknic.ErrNotSupported
}

// V3LicenseChallenge would run the v3 license challenge protocol.
func (b *Backend) V3LicenseChallenge(appID uint64, challenge []byte) ([]byte, error) {
	return nil, xsknic.ErrNotSupported
}
