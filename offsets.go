package xsknic

import "encoding/binary"

// OffsetsBlockSize is the encoded size of an OffsetsBlock: four rings of
// three 8-byte offsets, then the total mapped byte count.
const OffsetsBlockSize = 4*3*8 + 8

// PutOffsetsBlock encodes blk into buf in the fixed little-endian layout
// shared with user space. buf must hold at least OffsetsBlockSize bytes.
func PutOffsetsBlock(buf []byte, blk OffsetsBlock) {
	i := 0
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[i:], uint64(v))
		i += 8
	}
	for _, r := range []RingOffsets{blk.Rings.RX, blk.Rings.TX, blk.Rings.Fill, blk.Rings.Completion} {
		put(r.Producer)
		put(r.Consumer)
		put(r.Desc)
	}
	put(blk.MmapBytes)
}

// OffsetsBlockFromBytes decodes an OffsetsBlock written by
// PutOffsetsBlock.
func OffsetsBlockFromBytes(buf []byte) OffsetsBlock {
	i := 0
	get := func() int64 {
		v := int64(binary.LittleEndian.Uint64(buf[i:]))
		i += 8
		return v
	}
	ring := func() RingOffsets {
		return RingOffsets{Producer: get(), Consumer: get(), Desc: get()}
	}
	var blk OffsetsBlock
	blk.Rings.RX = ring()
	blk.Rings.TX = ring()
	blk.Rings.Fill = ring()
	blk.Rings.Completion = ring()
	blk.MmapBytes = get()
	return blk
}
