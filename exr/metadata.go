package exr

import (
	"io"

	"github.com/pixelgrove/openexr/internal/xdr"
)

const attrChunkCount = "chunkCount"

// ChunkCount returns the explicit "chunkCount" attribute, if set.
func (h *Header) ChunkCount() (int, bool) {
	a := h.Get(attrChunkCount)
	if a == nil {
		return 0, false
	}
	v, ok := a.Value.(int32)
	return int(v), ok
}

// SetChunkCount sets the explicit "chunkCount" attribute, required for
// every part of a multi-part file and optional for single-part files.
func (h *Header) SetChunkCount(n int) {
	h.Set(&Attribute{Name: attrChunkCount, Type: AttrTypeInt, Value: int32(n)})
}

// chunkCountFor resolves the number of chunks a part's offset table
// holds, preferring an explicit chunkCount attribute and falling back to
// the legacy dataWindow/tiles/compression formula for single-part files.
func chunkCountFor(h *Header, vf VersionField) (int, error) {
	if n, ok := h.ChunkCount(); ok {
		return n, nil
	}
	if vf.MultiPart {
		return 0, &MissingError{Name: attrChunkCount}
	}
	if h.IsDeep() {
		return 0, &NotSupportedError{Reason: "legacy chunk count for deep parts"}
	}
	return h.ChunksInFile(), nil
}

// MetaData is the fully-parsed, immutable header and offset-table section
// of an OpenEXR file: everything needed to locate and interpret every
// chunk, but none of the chunks themselves.
type MetaData struct {
	Version      VersionField
	Headers      []*Header
	OffsetTables []OffsetTable
}

// ReadMetaData parses the magic number, version word, one header per
// part, and one offset table per part from r, in that order.
func ReadMetaData(r io.Reader) (*MetaData, error) {
	br := xdr.NewStreamReader(r)

	vf, err := ReadMagicAndVersion(br)
	if err != nil {
		return nil, err
	}

	var headers []*Header
	if vf.MultiPart {
		for {
			h, empty, err := readMultiPartHeader(br)
			if err != nil {
				return nil, err
			}
			if empty {
				break
			}
			headers = append(headers, h)
		}
	} else {
		h, err := ReadHeader(br)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}

	offsetTables := make([]OffsetTable, len(headers))
	for i, h := range headers {
		count, err := chunkCountFor(h, vf)
		if err != nil {
			return nil, err
		}
		table, err := ReadOffsetTable(br, count)
		if err != nil {
			return nil, err
		}
		offsetTables[i] = table
	}

	return &MetaData{Version: vf, Headers: headers, OffsetTables: offsetTables}, nil
}

// readMultiPartHeader reads one header from a multi-part header list. A
// header with zero attributes (the first attribute read is the
// terminator) marks the end of the list, mirroring how a single header's
// attribute list is itself terminated.
func readMultiPartHeader(br xdr.ByteReader) (h *Header, endOfList bool, err error) {
	attr, err := ReadAttribute(br)
	if err != nil {
		return nil, false, err
	}
	if attr == nil {
		return nil, true, nil
	}
	h = NewHeader()
	h.Set(attr)
	for {
		a, err := ReadAttribute(br)
		if err != nil {
			return nil, false, err
		}
		if a == nil {
			break
		}
		h.Set(a)
	}
	return h, false, nil
}

// sectionSize is used as an upper bound when wrapping an io.ReaderAt in
// an io.SectionReader for a single chunk read of unknown length.
const sectionSize = int64(1) << 62

// ReadChunk reads the chunk at index chunkIndexInPart within part
// partIndex, seeking directly to its offset via r.
func (m *MetaData) ReadChunk(r io.ReaderAt, partIndex, chunkIndexInPart int) (*Chunk, error) {
	if partIndex < 0 || partIndex >= len(m.Headers) {
		return nil, &InvalidError{What: Invalidity{Name: "part_number", Reason: "out of range"}}
	}
	table := m.OffsetTables[partIndex]
	if chunkIndexInPart < 0 || chunkIndexInPart >= len(table) {
		return nil, &InvalidError{What: Invalidity{Name: "chunk_index", Reason: "out of range"}}
	}

	offset := int64(table[chunkIndexInPart])
	sr := io.NewSectionReader(r, offset, sectionSize-offset)
	br := xdr.NewStreamReader(sr)

	if m.Version.MultiPart || m.Version.NonImage {
		pn, err := PeekPartNumber(br)
		if err != nil {
			return nil, err
		}
		if pn != partIndex {
			return nil, &InvalidError{What: Invalidity{
				Name:   "part_number",
				Reason: "chunk's embedded part number does not match the offset table it was read from",
			}}
		}
	}

	return ReadChunk(br, m, partIndex)
}

// ChunkIterator reads every chunk of a file in on-disk order from a
// sequential io.Reader, without needing random access to the offset
// tables. Call Next until it returns false, then check Err.
type ChunkIterator struct {
	br      xdr.ByteReader
	m       *MetaData
	cursors []int
	done    bool
	err     error
}

// ReadAllChunks returns an iterator over every chunk remaining on r,
// which must be positioned immediately after the metadata most recently
// read from the same underlying stream via ReadMetaData.
func (m *MetaData) ReadAllChunks(r io.Reader) *ChunkIterator {
	return &ChunkIterator{br: xdr.NewStreamReader(r), m: m, cursors: make([]int, len(m.Headers))}
}

// Next advances the iterator and returns the next chunk, or false once
// every part has yielded as many chunks as its offset table promises or
// a read error occurs.
func (it *ChunkIterator) Next() (*Chunk, bool) {
	if it.done {
		return nil, false
	}

	partIndex := 0
	if it.m.Version.MultiPart || it.m.Version.NonImage {
		pn, err := PeekPartNumber(it.br)
		if err != nil {
			it.err = err
			it.done = true
			return nil, false
		}
		partIndex = pn
	}

	c, err := ReadChunk(it.br, it.m, partIndex)
	if err != nil {
		it.err = err
		it.done = true
		return nil, false
	}

	if partIndex < len(it.cursors) {
		it.cursors[partIndex]++
	}
	allDone := true
	for i := range it.cursors {
		if it.cursors[i] < len(it.m.OffsetTables[i]) {
			allDone = false
			break
		}
	}
	if allDone {
		it.done = true
	}
	return c, true
}

// Err returns the error that stopped iteration, or nil if iteration
// completed normally.
func (it *ChunkIterator) Err() error {
	return it.err
}
