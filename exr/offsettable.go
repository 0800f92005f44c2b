package exr

import (
	"github.com/pixelgrove/openexr/internal/xdr"
)

// OffsetTable is the ordered list of absolute byte offsets, one per
// chunk, that a part's header is followed by. Offset tables let a
// reader seek directly to any chunk without scanning the ones before it.
type OffsetTable []uint64

// ReadOffsetTable reads count 8-byte little-endian offsets.
func ReadOffsetTable(r xdr.ByteReader, count int) (OffsetTable, error) {
	table := make(OffsetTable, count)
	for i := 0; i < count; i++ {
		v, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		table[i] = v
	}
	return table, nil
}

// WriteOffsetTable writes table as a sequence of 8-byte little-endian offsets.
func WriteOffsetTable(w *xdr.BufferWriter, table OffsetTable) {
	for _, off := range table {
		w.WriteUint64(off)
	}
}
