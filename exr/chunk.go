package exr

import (
	"fmt"

	"github.com/pixelgrove/openexr/internal/xdr"
)

// Part type names, as stored in a multi-part header's "type" attribute.
const (
	PartTypeScanLine   = "scanlineimage"
	PartTypeTiled      = "tiledimage"
	PartTypeDeepScan   = "deepscanline"
	PartTypeDeepTile   = "deeptile"

	attrType = "type"
)

// PartType returns the part's "type" attribute, or "" if unset (legacy
// single-part files omit it; its shape is inferred from IsTiled()).
func (h *Header) PartType() string {
	a := h.Get(attrType)
	if a == nil {
		return ""
	}
	s, _ := a.Value.(string)
	return s
}

// SetPartType sets the part's "type" attribute.
func (h *Header) SetPartType(t string) {
	h.Set(&Attribute{Name: attrType, Type: AttrTypeString, Value: t})
}

// IsDeep reports whether the part stores deep (variable-sample) data.
func (h *Header) IsDeep() bool {
	switch h.PartType() {
	case PartTypeDeepScan, PartTypeDeepTile:
		return true
	default:
		return false
	}
}

// ChunkShape identifies which of the four on-disk chunk layouts a
// chunk uses.
type ChunkShape int

const (
	ShapeFlatScanline ChunkShape = iota
	ShapeFlatTile
	ShapeDeepScanline
	ShapeDeepTile
)

// shapeOf returns the chunk layout a part's header implies.
func shapeOf(h *Header) ChunkShape {
	switch h.PartType() {
	case PartTypeDeepScan:
		return ShapeDeepScanline
	case PartTypeDeepTile:
		return ShapeDeepTile
	case PartTypeTiled:
		return ShapeFlatTile
	case PartTypeScanLine:
		return ShapeFlatScanline
	default:
		if h.IsTiled() {
			return ShapeFlatTile
		}
		return ShapeFlatScanline
	}
}

// Chunk is one pixel block as it appears on disk: its placement
// coordinates plus the (still compressed) payload bytes. Interpreting
// the payload into typed per-channel samples is left to the caller;
// this module only frames and routes chunks.
type Chunk struct {
	PartIndex int
	Shape     ChunkShape

	// Flat scanline fields.
	Y int32

	// Flat/deep tile fields.
	TileX, TileY   int32
	LevelX, LevelY int32

	// Deep-only size fields (spec.md §3 "Chunk" layout).
	PackedOffsetTableSize int64
	PackedSampleSize      int64
	UnpackedSampleSize    int64

	// PackedOffsetTable holds, for deep chunks, one int64 sample count
	// per scanline/row of the chunk, used to locate individual samples
	// within PixelData.
	PackedOffsetTable []int64

	// PixelData is the chunk's payload: compressed sample data for flat
	// chunks, or the packed sample bytes for deep chunks.
	PixelData []byte
}

// ReadChunk reads one chunk from r, whose on-disk shape is determined by
// partIndex's header. For multi-part or non-image files the leading
// part-number word is read by the caller via PeekPartNumber first where
// needed; ReadChunk itself reads only the chunk body.
func ReadChunk(r xdr.ByteReader, m *MetaData, partIndex int) (*Chunk, error) {
	if partIndex < 0 || partIndex >= len(m.Headers) {
		return nil, &InvalidError{What: Invalidity{Name: "part_number", Reason: "out of range"}}
	}
	h := m.Headers[partIndex]
	shape := shapeOf(h)

	c := &Chunk{PartIndex: partIndex, Shape: shape}

	switch shape {
	case ShapeFlatScanline:
		y, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		c.Y = y
		c.PixelData = data

	case ShapeFlatTile:
		var err error
		if c.TileX, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.TileY, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.LevelX, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.LevelY, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		size, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		c.PixelData = data

	case ShapeDeepScanline:
		var err error
		if c.Y, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if err := readDeepSizes(r, c); err != nil {
			return nil, err
		}

	case ShapeDeepTile:
		var err error
		if c.TileX, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.TileY, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.LevelX, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.LevelY, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if err := readDeepSizes(r, c); err != nil {
			return nil, err
		}

	default:
		return nil, &NotSupportedError{Reason: fmt.Sprintf("chunk shape %d", shape)}
	}

	return c, nil
}

// readDeepSizes reads the three deep-chunk size fields and their two
// payloads (packed offset table, then packed sample bytes), per
// SPEC_FULL.md §3's resolution of the field-ordering open question.
func readDeepSizes(r xdr.ByteReader, c *Chunk) error {
	var err error
	if c.PackedOffsetTableSize, err = r.ReadInt64(); err != nil {
		return err
	}
	if c.PackedSampleSize, err = r.ReadInt64(); err != nil {
		return err
	}
	if c.UnpackedSampleSize, err = r.ReadInt64(); err != nil {
		return err
	}

	offsetBytes, err := r.ReadBytes(int(c.PackedOffsetTableSize))
	if err != nil {
		return err
	}
	offsetReader := xdr.NewReader(offsetBytes)
	count := int(c.PackedOffsetTableSize) / 8
	table := make([]int64, count)
	for i := range table {
		v, err := offsetReader.ReadInt64()
		if err != nil {
			return err
		}
		table[i] = v
	}
	c.PackedOffsetTable = table

	c.PixelData, err = r.ReadBytes(int(c.PackedSampleSize))
	return err
}

// WriteChunk writes c in the on-disk shape implied by its Shape field.
func WriteChunk(w *xdr.BufferWriter, c *Chunk) error {
	switch c.Shape {
	case ShapeFlatScanline:
		w.WriteInt32(c.Y)
		w.WriteInt32(int32(len(c.PixelData)))
		w.WriteBytes(c.PixelData)

	case ShapeFlatTile:
		w.WriteInt32(c.TileX)
		w.WriteInt32(c.TileY)
		w.WriteInt32(c.LevelX)
		w.WriteInt32(c.LevelY)
		w.WriteInt32(int32(len(c.PixelData)))
		w.WriteBytes(c.PixelData)

	case ShapeDeepScanline:
		w.WriteInt32(c.Y)
		writeDeepSizes(w, c)

	case ShapeDeepTile:
		w.WriteInt32(c.TileX)
		w.WriteInt32(c.TileY)
		w.WriteInt32(c.LevelX)
		w.WriteInt32(c.LevelY)
		writeDeepSizes(w, c)

	default:
		return &NotSupportedError{Reason: fmt.Sprintf("chunk shape %d", c.Shape)}
	}
	return nil
}

func writeDeepSizes(w *xdr.BufferWriter, c *Chunk) {
	offsetTableBuf := xdr.NewBufferWriter(8 * len(c.PackedOffsetTable))
	for _, v := range c.PackedOffsetTable {
		offsetTableBuf.WriteInt64(v)
	}

	w.WriteInt64(int64(offsetTableBuf.Len()))
	w.WriteInt64(int64(len(c.PixelData)))
	w.WriteInt64(c.UnpackedSampleSize)
	w.WriteBytes(offsetTableBuf.Bytes())
	w.WriteBytes(c.PixelData)
}

// PeekPartNumber reads and returns the leading uint64 part-number field
// that prefixes every chunk in a multi-part or non-image file, per
// original_source's multi_part_chunk routing.
func PeekPartNumber(r xdr.ByteReader) (int, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
