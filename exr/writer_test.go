package exr

import (
	"bytes"
	"io"
	"testing"
)

// mockWriteSeeker implements io.WriteSeeker using a byte slice.
type mockWriteSeeker struct {
	data []byte
	pos  int64
}

func newMockWriteSeeker() *mockWriteSeeker {
	return &mockWriteSeeker{data: make([]byte, 0, 1024)}
}

func (m *mockWriteSeeker) Write(p []byte) (n int, err error) {
	needed := int(m.pos) + len(p)
	if needed > len(m.data) {
		if needed > cap(m.data) {
			newData := make([]byte, needed, needed*2)
			copy(newData, m.data)
			m.data = newData
		} else {
			m.data = m.data[:needed]
		}
	}
	copy(m.data[m.pos:], p)
	m.pos += int64(len(p))
	return len(p), nil
}

func (m *mockWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	if int(m.pos) > len(m.data) {
		newData := make([]byte, int(m.pos))
		copy(newData, m.data)
		m.data = newData
	}
	return m.pos, nil
}

func (m *mockWriteSeeker) Bytes() []byte {
	return m.data
}

func singlePartHeader() *Header {
	h := NewScanlineHeader(4, 4)
	h.SetCompression(CompressionNone)
	return h
}

func TestWriterSinglePartRoundTrip(t *testing.T) {
	h := singlePartHeader()
	ws := newMockWriteSeeker()

	w, err := NewWriter(ws, []*Header{h})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for y := int32(0); y < 4; y++ {
		c := &Chunk{Shape: ShapeFlatScanline, Y: y, PixelData: []byte{byte(y), byte(y), byte(y), byte(y)}}
		if err := w.WriteChunk(0, c); err != nil {
			t.Fatalf("WriteChunk(%d): %v", y, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	md, err := ReadMetaData(bytes.NewReader(ws.Bytes()))
	if err != nil {
		t.Fatalf("ReadMetaData: %v", err)
	}
	if len(md.Headers) != 1 {
		t.Fatalf("len(Headers) = %d, want 1", len(md.Headers))
	}
	if len(md.OffsetTables[0]) != 4 {
		t.Fatalf("len(OffsetTables[0]) = %d, want 4", len(md.OffsetTables[0]))
	}

	for y := 0; y < 4; y++ {
		c, err := md.ReadChunk(bytes.NewReader(ws.Bytes()), 0, y)
		if err != nil {
			t.Fatalf("ReadChunk(%d): %v", y, err)
		}
		if c.Y != int32(y) {
			t.Errorf("chunk %d: Y = %d, want %d", y, c.Y, y)
		}
	}
}

func TestWriterMultiPartRoundTrip(t *testing.T) {
	h0 := singlePartHeader()
	h0.SetPartType(PartTypeScanLine)
	h1 := NewTiledHeader(8, 8, 4, 4)
	h1.SetPartType(PartTypeTiled)
	ws := newMockWriteSeeker()

	w, err := NewWriter(ws, []*Header{h0, h1})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for y := int32(0); y < 4; y++ {
		if err := w.WriteChunk(0, &Chunk{Shape: ShapeFlatScanline, Y: y, PixelData: []byte{1, 2}}); err != nil {
			t.Fatalf("WriteChunk part 0, %d: %v", y, err)
		}
	}
	for i := int32(0); i < 4; i++ {
		c := &Chunk{Shape: ShapeFlatTile, TileX: i % 2, TileY: i / 2, PixelData: []byte{3, 4}}
		if err := w.WriteChunk(1, c); err != nil {
			t.Fatalf("WriteChunk part 1, %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	md, err := ReadMetaData(bytes.NewReader(ws.Bytes()))
	if err != nil {
		t.Fatalf("ReadMetaData: %v", err)
	}
	if !md.Version.MultiPart {
		t.Fatal("expected the multi-part flag to be set")
	}
	if len(md.Headers) != 2 {
		t.Fatalf("len(Headers) = %d, want 2", len(md.Headers))
	}

	c, err := md.ReadChunk(bytes.NewReader(ws.Bytes()), 1, 2)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if c.PartIndex != 1 {
		t.Errorf("PartIndex = %d, want 1", c.PartIndex)
	}
}

func TestWriterRejectsUnnamedMultiPartType(t *testing.T) {
	h0 := singlePartHeader()
	h1 := singlePartHeader()
	ws := newMockWriteSeeker()

	if _, err := NewWriter(ws, []*Header{h0, h1}); err == nil {
		t.Fatal("expected an error when a multi-part header has no \"type\" attribute")
	}
}

func TestWriterSequentialIteration(t *testing.T) {
	h := singlePartHeader()
	ws := newMockWriteSeeker()

	w, err := NewWriter(ws, []*Header{h})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for y := int32(0); y < 4; y++ {
		if err := w.WriteChunk(0, &Chunk{Shape: ShapeFlatScanline, Y: y, PixelData: []byte{1}}); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := bytes.NewReader(ws.Bytes())
	md, err := ReadMetaData(r)
	if err != nil {
		t.Fatalf("ReadMetaData: %v", err)
	}

	it := md.ReadAllChunks(r)
	count := 0
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		if c.Y != int32(count) {
			t.Errorf("chunk %d: Y = %d, want %d", count, c.Y, count)
		}
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if count != 4 {
		t.Errorf("iterated %d chunks, want 4", count)
	}
}
