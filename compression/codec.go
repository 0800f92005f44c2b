package compression

import (
	"sort"

	"github.com/pixelgrove/openexr/exr"
	"github.com/pixelgrove/openexr/internal/predictor"
)

// defaultDwaLevel is the DWA compression quality dwaCodec always passes
// to CompressDWAA/CompressDWAB; a header's dwaCompressionLevel attribute
// is not read.
const defaultDwaLevel = 45.0

func init() {
	exr.RegisterCodec(exr.CompressionRLE, rleCodec{})
	exr.RegisterCodec(exr.CompressionZIPS, zipCodec{})
	exr.RegisterCodec(exr.CompressionZIP, zipCodec{})
	exr.RegisterCodec(exr.CompressionPIZ, pizCodec{})
	exr.RegisterCodec(exr.CompressionPXR24, pxr24Codec{})
	exr.RegisterCodec(exr.CompressionB44, b44Codec{flatfields: false})
	exr.RegisterCodec(exr.CompressionB44A, b44Codec{flatfields: true})
	exr.RegisterCodec(exr.CompressionDWAA, dwaCodec{shape: 'a'})
	exr.RegisterCodec(exr.CompressionDWAB, dwaCodec{shape: 'b'})
	exr.RegisterCodec(exr.CompressionHTJ2K256, htj2kCodec{blockSize: 256})
	exr.RegisterCodec(exr.CompressionHTJ2K32, htj2kCodec{blockSize: 32})
}

// sortedChannels returns a copy of cl's channels grouped by pixel type
// then name, the order in which the PXR24, B44 and HTJ2K codecs below
// build their per-channel info. It never mutates the header's own
// name-sorted list.
func sortedChannels(cl *exr.ChannelList) []exr.Channel {
	chs := cl.Channels()
	sort.Slice(chs, func(i, j int) bool {
		if chs[i].Type != chs[j].Type {
			return chs[i].Type < chs[j].Type
		}
		return chs[i].Name < chs[j].Name
	})
	return chs
}

// rleCodec implements run-length encoding with horizontal-difference
// prediction, used for CompressionRLE.
type rleCodec struct{}

func (rleCodec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	encoded := make([]byte, len(data))
	copy(encoded, data)
	predictor.Encode(encoded)
	return RLECompress(encoded), nil
}

func (rleCodec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	decompressed, err := RLEDecompress(data, expectedSize)
	if err != nil {
		return nil, err
	}
	predictor.Decode(decompressed)
	return decompressed, nil
}

// zipCodec implements zlib compression over byte-plane-interleaved,
// predicted pixel data, used for both CompressionZIPS and CompressionZIP
// (the two differ only in how many scanlines the caller groups per chunk).
type zipCodec struct{}

func (zipCodec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	encoded := make([]byte, len(data))
	copy(encoded, data)
	predictor.Encode(encoded)

	var interleaved []byte
	if len(encoded) >= 32 {
		interleaved = InterleaveFast(encoded)
	} else {
		interleaved = Interleave(encoded)
	}
	return ZIPCompress(interleaved)
}

func (zipCodec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	decompressed, err := ZIPDecompress(data, expectedSize)
	if err != nil {
		return nil, err
	}

	var deinterleaved []byte
	if len(decompressed) >= 32 {
		deinterleaved = DeinterleaveFast(decompressed)
	} else {
		deinterleaved = Deinterleave(decompressed)
	}
	predictor.Decode(deinterleaved)
	return deinterleaved, nil
}

// pizCodec would implement the PIZ wavelet+Huffman method. No Huffman
// entropy stage exists anywhere in this module's ancestry, and the
// wavelet transform alone cannot decode a PIZ chunk, so there is
// nothing to ground a complete implementation on; it registers to keep
// CompressionPIZ recognized but reports it as unsupported.
type pizCodec struct{}

func (pizCodec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	return nil, &exr.NotSupportedError{Reason: "PIZ compression (wavelet+Huffman entropy stage not implemented)"}
}

func (pizCodec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	return nil, &exr.NotSupportedError{Reason: "PIZ decompression (wavelet+Huffman entropy stage not implemented)"}
}

type pxr24Codec struct{}

func pxr24ChannelInfo(chs []exr.Channel, width, height int) []ChannelInfo {
	out := make([]ChannelInfo, len(chs))
	for i, ch := range chs {
		xs := int(ch.XSampling)
		if xs < 1 {
			xs = 1
		}
		chWidth := (width + xs - 1) / xs
		out[i] = ChannelInfo{Type: int(ch.Type), Width: chWidth, Height: height}
	}
	return out
}

func (pxr24Codec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return PXR24Compress(data, pxr24ChannelInfo(chs, width, height), width, height)
}

func (pxr24Codec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return PXR24Decompress(data, pxr24ChannelInfo(chs, width, height), width, height, expectedSize)
}

type b44Codec struct {
	flatfields bool
}

func b44ChannelInfo(chs []exr.Channel, width, height int) []B44ChannelInfo {
	out := make([]B44ChannelInfo, len(chs))
	for i, ch := range chs {
		xs, ys := int(ch.XSampling), int(ch.YSampling)
		if xs < 1 {
			xs = 1
		}
		if ys < 1 {
			ys = 1
		}
		chWidth := (width + xs - 1) / xs
		out[i] = B44ChannelInfo{
			Type:      int(ch.Type),
			Width:     chWidth,
			Height:    height,
			IsLinear:  ch.PLinear,
			XSampling: xs,
			YSampling: ys,
		}
	}
	return out
}

func (c b44Codec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return B44Compress(data, b44ChannelInfo(chs, width, height), width, height, c.flatfields)
}

func (c b44Codec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return B44Decompress(data, b44ChannelInfo(chs, width, height), width, height, expectedSize)
}

// dwaCodec implements the DCT-based lossy method, in its 32-scanline
// ('a') and 256-scanline ('b') chunking variants.
type dwaCodec struct {
	shape byte
}

func (c dwaCodec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	if c.shape == 'a' {
		return CompressDWAA(data, width, height, defaultDwaLevel)
	}
	return CompressDWAB(data, width, height, defaultDwaLevel)
}

func (c dwaCodec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	dst := make([]byte, expectedSize)
	var err error
	if c.shape == 'a' {
		err = DecompressDWAA(data, dst, width, height)
	} else {
		err = DecompressDWAB(data, dst, width, height)
	}
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// htj2kCodec wraps the High-Throughput JPEG 2000 codec, available in
// 256x256 and 32x32 code-block variants.
type htj2kCodec struct {
	blockSize int
}

func htj2kChannelInfo(chs []exr.Channel, width, height int) []HTJ2KChannelInfo {
	out := make([]HTJ2KChannelInfo, len(chs))
	for i, ch := range chs {
		xs, ys := int(ch.XSampling), int(ch.YSampling)
		if xs < 1 {
			xs = 1
		}
		if ys < 1 {
			ys = 1
		}
		chWidth := (width + xs - 1) / xs
		out[i] = HTJ2KChannelInfo{
			Type:      int(ch.Type),
			Width:     chWidth,
			Height:    height,
			XSampling: xs,
			YSampling: ys,
			Name:      ch.Name,
		}
	}
	return out
}

func (c htj2kCodec) Compress(data []byte, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return HTJ2KCompress(data, height, htj2kChannelInfo(chs, width, height), c.blockSize)
}

func (c htj2kCodec) Decompress(data []byte, expectedSize, width, height int, cl *exr.ChannelList) ([]byte, error) {
	chs := sortedChannels(cl)
	return HTJ2KDecompress(data, expectedSize, htj2kChannelInfo(chs, width, height))
}
