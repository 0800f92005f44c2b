package exr

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// File is a thin convenience wrapper around an io.ReaderAt and the
// MetaData parsed from it: an open/close lifecycle for locating and
// reading chunks, with no pixel assembly.
type File struct {
	r      io.ReaderAt
	size   int64
	md     *MetaData
	closer io.Closer
}

// Open parses the metadata section from r and returns a File ready for
// ReadChunk calls against the rest of r. size must be the full byte
// length of r.
func Open(r io.ReaderAt, size int64) (*File, error) {
	md, err := ReadMetaData(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	return &File{r: r, size: size, md: md}, nil
}

// OpenFile opens an EXR file from the filesystem. The returned File must
// be closed to release the file handle.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "exr: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "exr: stat %s", path)
	}
	file, err := Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "exr: parse metadata in %s", path)
	}
	file.closer = f
	return file, nil
}

// MetaData returns the file's parsed headers and offset tables.
func (f *File) MetaData() *MetaData {
	return f.md
}

// Header returns the header for part, or nil if part is out of range.
func (f *File) Header(part int) *Header {
	if part < 0 || part >= len(f.md.Headers) {
		return nil
	}
	return f.md.Headers[part]
}

// NumParts returns the number of parts in the file.
func (f *File) NumParts() int {
	return len(f.md.Headers)
}

// IsMultiPart reports whether the file uses the multi-part container
// layout (a part-number prefix on every chunk).
func (f *File) IsMultiPart() bool {
	return f.md.Version.MultiPart
}

// IsDeep reports whether any part of the file stores deep data.
func (f *File) IsDeep() bool {
	for _, h := range f.md.Headers {
		if h.IsDeep() {
			return true
		}
	}
	return false
}

// ReadChunk reads the chunk at chunkIndexInPart within part partIndex.
func (f *File) ReadChunk(partIndex, chunkIndexInPart int) (*Chunk, error) {
	return f.md.ReadChunk(f.r, partIndex, chunkIndexInPart)
}

// Close releases the underlying file handle, if Open was reached via
// OpenFile. It is a no-op for a File opened directly from a reader.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
