package nic

import (
	"fmt"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/pagemap"
)

// VIInit activates a configured VI: it registers the owning protection
// domain's zero-copy memory with a fresh control handle, provisions the
// four descriptor rings into pm, installs the handle in the redirect map
// and binds it to the device queue matching the instance number.
//
// The returned socket stays owned by the VI; the caller uses it for
// polling and wakeups until QueueDisable.
//
// Activation is not transactional. A failure after the control handle is
// acquired leaves the VI partially populated; QueueDisable reclaims it.
func (b *Backend) VIInit(instance int, chunkSize, headroom uint32, pm *pagemap.Map) (xsknic.Socket, error) {
	// Sizing is validated before any resource is touched.
	if chunkSize == 0 ||
		chunkSize > xsknic.PageSize ||
		xsknic.PageSize%chunkSize != 0 ||
		headroom > chunkSize {
		return nil, xsknic.InvalidChunkError{ChunkSize: chunkSize, Headroom: headroom}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.viByInstance(instance)
	if v == nil {
		return nil, fmt.Errorf("vi init instance %d: %w", instance, xsknic.ErrNoSuchDevice)
	}
	if v.sock != nil {
		return nil, fmt.Errorf("vi init instance %d: %w", instance, xsknic.ErrBusy)
	}
	if v.rxqCapacity == 0 || v.txqCapacity == 0 {
		return nil, fmt.Errorf("vi init instance %d: queues not configured: %w", instance, xsknic.ErrNoSuchDevice)
	}
	pd := b.pdByOwner(v.ownerID)
	if pd == nil {
		return nil, xsknic.RangeError{What: "owner id", Value: int64(v.ownerID), Limit: int64(len(b.pds))}
	}

	sock, err := b.fac.OpenSocket()
	if err != nil {
		return nil, fmt.Errorf("open control handle: %w", err)
	}
	v.sock = sock

	v.userOffsetsPage = pagemap.NewPage()
	pm.AddPage(v.userOffsetsPage)

	// The user-visible region spans the populated part of the domain's
	// page directory; pages resolve lazily through the directory's
	// fault path.
	src := pd.Pages()
	if err := sock.RegisterUmem(src.UsedPageCount()<<xsknic.PageShift, chunkSize, headroom, src); err != nil {
		return nil, fmt.Errorf("register umem: %w", err)
	}

	var userRings xsknic.RingSetOffsets
	if err := b.createRings(sock, pm, v, &userRings); err != nil {
		return nil, err
	}

	if err := b.attach.Update(instance, sock); err != nil {
		return nil, fmt.Errorf("install socket in redirect map: %w", err)
	}

	// Instance numbers track device queue numbers one to one.
	if err := sock.Bind(instance, v.bindFlags|b.extraBind); err != nil {
		return nil, fmt.Errorf("bind to queue %d: %w", instance, err)
	}

	total := pm.Bytes()
	v.kernelOffsets.MmapBytes = total
	xsknic.PutOffsetsBlock(v.userOffsetsPage.Bytes(), xsknic.OffsetsBlock{
		Rings:     userRings,
		MmapBytes: total,
	})

	b.logger.Info("vi activated",
		"instance", instance,
		"owner", v.ownerID,
		"rxq", v.rxqCapacity,
		"txq", v.txqCapacity,
		"chunk_size", chunkSize,
		"headroom", headroom,
		"mmap_bytes", total)
	return sock, nil
}
