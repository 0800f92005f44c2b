package exr

import (
	"fmt"

	"github.com/pixelgrove/openexr/internal/xdr"
)

// MagicNumber is the four-byte literal that opens every OpenEXR file.
var MagicNumber = [4]byte{0x01, 0x02, 0x03, 0x76}

const (
	versionMask    = 0x000000FF
	flagTiled      = 1 << 9
	flagLongNames  = 1 << 10
	flagNonImage   = 1 << 11 // deep data
	flagMultiPart  = 1 << 12
	knownVersion   = 2
	knownFlagsMask = flagTiled | flagLongNames | flagNonImage | flagMultiPart
)

// VersionField decodes the 4-byte word following the magic number: an
// 8-bit format version plus feature flag bits.
type VersionField struct {
	Version   uint8
	Tiled     bool
	LongNames bool
	NonImage  bool // deep data present
	MultiPart bool
}

// ReadMagicAndVersion reads and validates the 8-byte file prologue
// (4-byte magic number, 4-byte version word). It returns
// NotTheExpectedFormatError if the magic number does not match.
func ReadMagicAndVersion(r xdr.ByteReader) (VersionField, error) {
	var magic [4]byte
	for i := range magic {
		b, err := r.ReadByte()
		if err != nil {
			return VersionField{}, err
		}
		magic[i] = b
	}
	if magic != MagicNumber {
		return VersionField{}, &NotTheExpectedFormatError{}
	}

	word, err := r.ReadUint32()
	if err != nil {
		return VersionField{}, err
	}

	vf := VersionField{
		Version:   uint8(word & versionMask),
		Tiled:     word&flagTiled != 0,
		LongNames: word&flagLongNames != 0,
		NonImage:  word&flagNonImage != 0,
		MultiPart: word&flagMultiPart != 0,
	}

	// A file cannot simultaneously be single-part tiled and multi-part;
	// multi-part files encode per-part tiled-ness in each header's
	// "type" attribute instead of this global flag.
	if vf.Tiled && vf.MultiPart {
		return vf, &InvalidError{What: Invalidity{
			Name:   "version",
			Reason: "tiled flag and multipart flag are mutually exclusive",
		}}
	}

	// Deep data (the NonImage flag) is only representable in the
	// multi-part container layout, which carries each part's chunk
	// shape in its header rather than in this global flag word.
	if vf.NonImage && !vf.MultiPart {
		return vf, &InvalidError{What: Invalidity{
			Name:   "version",
			Reason: "deep data (non-image flag) requires the multipart flag",
		}}
	}

	if vf.Version > knownVersion {
		return vf, &NotSupportedError{Reason: fmt.Sprintf("file format version %d", vf.Version)}
	}
	if word&^uint32(versionMask|knownFlagsMask) != 0 {
		return vf, &NotSupportedError{Reason: "unrecognized version flag bits set"}
	}

	return vf, nil
}

// WriteMagicAndVersion writes the 8-byte file prologue for vf.
func WriteMagicAndVersion(w *xdr.BufferWriter, vf VersionField) {
	w.WriteBytes(MagicNumber[:])

	word := uint32(vf.Version)
	if vf.Tiled {
		word |= flagTiled
	}
	if vf.LongNames {
		word |= flagLongNames
	}
	if vf.NonImage {
		word |= flagNonImage
	}
	if vf.MultiPart {
		word |= flagMultiPart
	}
	w.WriteUint32(word)
}
