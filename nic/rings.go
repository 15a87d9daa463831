package nic

import (
	"fmt"
	"unsafe"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/pagemap"
)

// createRings provisions the four descriptor rings for an activating VI.
//
// Order matters: each ring's user-visible offsets are relative to the
// bytes already present in the page map, so RX, TX, fill and completion
// must land in that order for both sides to agree on the layout. The fill
// ring is sized with the RX capacity and the completion ring with the TX
// capacity.
func (b *Backend) createRings(sock xsknic.Socket, pm *pagemap.Map, v *vi, userRings *xsknic.RingSetOffsets) error {
	layout, err := sock.MmapOffsets()
	if err != nil {
		return fmt.Errorf("query ring layout: %w", err)
	}

	// Kernel-side consumers dereference ring pointers relative to the
	// address of the VI's kernel offsets block, so that block is the
	// base for the kernel triples.
	kernBase := uintptr(unsafe.Pointer(&v.kernelOffsets))

	kern := &v.kernelOffsets.Rings
	for _, r := range []struct {
		kind     xsknic.RingKind
		capacity int
		kern     *xsknic.RingOffsets
		user     *xsknic.RingOffsets
	}{
		{xsknic.RXRing, v.rxqCapacity, &kern.RX, &userRings.RX},
		{xsknic.TXRing, v.txqCapacity, &kern.TX, &userRings.TX},
		{xsknic.FillRing, v.rxqCapacity, &kern.Fill, &userRings.Fill},
		{xsknic.CompletionRing, v.txqCapacity, &kern.Completion, &userRings.Completion},
	} {
		if err := b.createRing(sock, pm, kernBase, r.kind, r.capacity, layout.Layout(r.kind), r.kern, r.user); err != nil {
			return fmt.Errorf("provision %s ring: %w", r.kind, err)
		}
	}
	return nil
}

// createRing provisions one ring: negotiate the capacity, map the ring's
// kernel memory just long enough to locate its backing pages, append
// those pages to the page map as one lump, and republish the producer,
// consumer and descriptor offsets against both bases.
func (b *Backend) createRing(sock xsknic.Socket, pm *pagemap.Map, kernBase uintptr,
	kind xsknic.RingKind, capacity int, layout xsknic.RingLayout,
	kern, user *xsknic.RingOffsets) error {

	// Bytes mapped before this ring: the ring's user base.
	userBase := pm.Bytes()

	if err := sock.SetRingSize(kind, capacity); err != nil {
		return fmt.Errorf("set ring size %d: %w", capacity, err)
	}

	size := int64(layout.Desc) + int64(capacity+1)*int64(kind.DescSize())
	mapping, err := sock.MapRing(kind, size)
	if err != nil {
		return fmt.Errorf("map %d bytes: %w", size, err)
	}

	if _, err := pm.AddLump(pagemap.Run{Base: mapping.Base(), NPages: mapping.Pages()}); err != nil {
		mapping.Unmap()
		return err
	}

	ringBase := int64(mapping.Base()) - int64(kernBase)
	kern.Producer = ringBase + int64(layout.Producer)
	kern.Consumer = ringBase + int64(layout.Consumer)
	kern.Desc = ringBase + int64(layout.Desc)

	user.Producer = userBase + int64(layout.Producer)
	user.Consumer = userBase + int64(layout.Consumer)
	user.Desc = userBase + int64(layout.Desc)

	// Only the page-map lump persists; the temporary view goes away.
	if err := mapping.Unmap(); err != nil {
		return fmt.Errorf("release temporary mapping: %w", err)
	}

	b.logger.Debug("ring provisioned",
		"ring", kind.String(),
		"capacity", capacity,
		"bytes", size,
		"user_base", userBase)
	return nil
}
