package exr

import "sync"

// Codec compresses and decompresses the pixel payload of a chunk for one
// Compression method. Implementations work on the pixel bytes in the
// scanline/tile interleaved-channel layout described by cl; width and
// height are the chunk's pixel dimensions (a single scanline block's
// height for flat scanline chunks, a tile's dimensions for tiled chunks).
//
// The exr package itself ships no concrete Codec beyond CompressionNone's
// identity pass-through; everything else is registered by the
// compression package's init, keeping codec internals out of the core.
type Codec interface {
	Compress(data []byte, width, height int, cl *ChannelList) ([]byte, error)
	Decompress(data []byte, expectedSize, width, height int, cl *ChannelList) ([]byte, error)
}

var (
	codecMu  sync.RWMutex
	codecReg = map[Compression]Codec{
		CompressionNone: identityCodec{},
	}
)

// RegisterCodec installs codec as the implementation for the given
// compression method, replacing any codec previously registered for it.
// Called from package init functions (see the compression package) to
// keep the core free of codec-specific dependencies.
func RegisterCodec(c Compression, codec Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecReg[c] = codec
}

// CodecFor returns the codec registered for c, if any.
func CodecFor(c Compression) (Codec, bool) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	codec, ok := codecReg[c]
	return codec, ok
}

type identityCodec struct{}

func (identityCodec) Compress(data []byte, width, height int, cl *ChannelList) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (identityCodec) Decompress(data []byte, expectedSize, width, height int, cl *ChannelList) ([]byte, error) {
	if len(data) != expectedSize {
		return nil, &InvalidError{What: Invalidity{Name: "chunk", Reason: "uncompressed chunk size mismatch"}}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
