package xsknic

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the backend facade.
var (
	// ErrBusy is returned when activating a VI that already holds a
	// control handle. Release it with QueueDisable first.
	ErrBusy = errors.New("virtual interface is active")

	// ErrNoSuchDevice is returned for an instance or owner that does not
	// resolve to a configured slot.
	ErrNoSuchDevice = errors.New("no such device")

	// ErrNotSupported is returned by the deliberately unimplemented
	// operations of the generic NIC table.
	ErrNotSupported = errors.New("operation not supported")

	// ErrOwnerSpace is returned when an owner id cannot be encoded in a
	// buffer-table block handle.
	ErrOwnerSpace = errors.New("owner id exceeds handle encoding space")
)

// InvalidChunkError reports chunk/headroom sizing rejected before any
// resource is acquired.
type InvalidChunkError struct {
	ChunkSize uint32
	Headroom  uint32
}

func (e InvalidChunkError) Error() string {
	return fmt.Sprintf("invalid umem sizing: chunk %d headroom %d (chunk must be non-zero, divide the %d byte page, and not be smaller than headroom)",
		e.ChunkSize, e.Headroom, PageSize)
}

// AccessViolationError reports a fault on a page beyond the populated part
// of a registered memory region.
type AccessViolationError struct {
	Offset int64
	Page   int64
	Used   int64
}

func (e AccessViolationError) Error() string {
	return fmt.Sprintf("access violation: offset %#x is page %d, only %d pages populated", e.Offset, e.Page, e.Used)
}

// RangeError reports an out-of-range index or count on a bounds-checked
// lookup.
type RangeError struct {
	What  string
	Value int64
	Limit int64
}

func (e RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.What, e.Value, e.Limit)
}
