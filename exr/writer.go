package exr

import (
	"io"

	"github.com/pixelgrove/openexr/internal/xdr"
)

// Writer emits an OpenEXR container: magic number, version word, one
// header per part, a placeholder offset table per part, then chunk
// bodies as the caller supplies them through WriteChunk. Close
// back-patches the real offset tables once every chunk has been
// written.
type Writer struct {
	w       io.WriteSeeker
	vf      VersionField
	headers []*Header

	offsetTables   []OffsetTable
	offsetTablePos []int64
	cursor         []int

	closed bool
}

// NewWriter validates headers, writes the magic number, version word,
// headers, and placeholder offset tables to w, and returns a Writer
// ready for WriteChunk calls.
func NewWriter(w io.WriteSeeker, headers []*Header) (*Writer, error) {
	if len(headers) == 0 {
		return nil, &InvalidError{What: Invalidity{Name: "headers", Reason: "at least one part is required"}}
	}
	for _, h := range headers {
		if err := h.Validate(); err != nil {
			return nil, err
		}
	}

	vf := VersionField{Version: knownVersion}
	anyDeep := false
	for _, h := range headers {
		if h.IsDeep() {
			anyDeep = true
			vf.NonImage = true
		}
	}
	if len(headers) > 1 || anyDeep {
		// Deep data is only representable in the multipart container
		// layout, so a single deep part still goes out multipart.
		vf.MultiPart = true
		for _, h := range headers {
			if h.PartType() == "" {
				return nil, &MissingError{Name: attrType}
			}
		}
	} else if headers[0].IsTiled() {
		vf.Tiled = true
	}

	bw := xdr.NewBufferWriter(4096)
	WriteMagicAndVersion(bw, vf)

	if vf.MultiPart {
		for _, h := range headers {
			if err := WriteHeader(bw, h); err != nil {
				return nil, err
			}
		}
		bw.WriteByte(0) // end-of-header-list marker
	} else {
		if err := WriteHeader(bw, headers[0]); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write(bw.Bytes()); err != nil {
		return nil, err
	}

	offsetTables := make([]OffsetTable, len(headers))
	offsetTablePos := make([]int64, len(headers))
	for i, h := range headers {
		count, err := chunkCountFor(h, vf)
		if err != nil {
			return nil, err
		}
		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		offsetTablePos[i] = pos
		offsetTables[i] = make(OffsetTable, count)

		placeholder := xdr.NewBufferWriter(8 * count)
		WriteOffsetTable(placeholder, offsetTables[i])
		if _, err := w.Write(placeholder.Bytes()); err != nil {
			return nil, err
		}
	}

	return &Writer{
		w:              w,
		vf:             vf,
		headers:        headers,
		offsetTables:   offsetTables,
		offsetTablePos: offsetTablePos,
		cursor:         make([]int, len(headers)),
	}, nil
}

// WriteChunk appends c's encoded bytes to the stream and records its
// offset in partIndex's offset table, at the next unfilled slot.
func (wtr *Writer) WriteChunk(partIndex int, c *Chunk) error {
	if partIndex < 0 || partIndex >= len(wtr.headers) {
		return &InvalidError{What: Invalidity{Name: "part_number", Reason: "out of range"}}
	}
	idx := wtr.cursor[partIndex]
	if idx >= len(wtr.offsetTables[partIndex]) {
		return &InvalidError{What: Invalidity{Name: "chunk_index", Reason: "offset table for this part is already full"}}
	}

	pos, err := wtr.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	c.PartIndex = partIndex
	c.Shape = shapeOf(wtr.headers[partIndex])

	bw := xdr.NewBufferWriter(256 + len(c.PixelData))
	if wtr.vf.MultiPart || wtr.vf.NonImage {
		bw.WriteUint64(uint64(partIndex))
	}
	if err := WriteChunk(bw, c); err != nil {
		return err
	}
	if _, err := wtr.w.Write(bw.Bytes()); err != nil {
		return err
	}

	wtr.offsetTables[partIndex][idx] = uint64(pos)
	wtr.cursor[partIndex]++
	return nil
}

// Close seeks back and writes the final offset tables, then returns the
// stream position to the end of the file. It does not close w itself.
func (wtr *Writer) Close() error {
	if wtr.closed {
		return nil
	}
	wtr.closed = true

	end, err := wtr.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	for i, table := range wtr.offsetTables {
		if _, err := wtr.w.Seek(wtr.offsetTablePos[i], io.SeekStart); err != nil {
			return err
		}
		bw := xdr.NewBufferWriter(8 * len(table))
		WriteOffsetTable(bw, table)
		if _, err := wtr.w.Write(bw.Bytes()); err != nil {
			return err
		}
	}

	_, err = wtr.w.Seek(end, io.SeekStart)
	return err
}
