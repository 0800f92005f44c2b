package exr

import (
	"fmt"

	"github.com/pixelgrove/openexr/compression"
	"github.com/pixelgrove/openexr/internal/xdr"
)

// Standard required attribute names, per the OpenEXR file format.
const (
	attrChannels           = "channels"
	attrCompression        = "compression"
	attrDataWindow         = "dataWindow"
	attrDisplayWindow      = "displayWindow"
	attrLineOrder          = "lineOrder"
	attrPixelAspectRatio   = "pixelAspectRatio"
	attrScreenWindowCenter = "screenWindowCenter"
	attrScreenWindowWidth  = "screenWindowWidth"
	attrTiles              = "tiles"
	attrDWACompressLevel   = "dwaCompressionLevel"
)

// DefaultDWACompressionLevel is the level DWACompressionLevel reports
// when a header does not carry an explicit dwaCompressionLevel attribute.
// The registered DWA codecs do not read the header's level.
const DefaultDWACompressionLevel = 45.0

// CompressionOptions carries codec tuning knobs that ride alongside a
// header but are not themselves OpenEXR attributes.
type CompressionOptions struct {
	// ZIPLevel records a zlib compression level for ZIP/ZIPS data;
	// compression.CompressionLevelDefault means no explicit level. The
	// registered ZIP/ZIPS codecs do not read it and always compress at
	// zlib's default level.
	ZIPLevel compression.CompressionLevel
}

// Header holds the ordered attribute list for one part of an OpenEXR
// file. Attribute order is preserved across Read/Write so unknown or
// vendor-specific attributes survive a round trip unchanged.
type Header struct {
	attrs   []*Attribute
	index   map[string]int
	options CompressionOptions

	detectedFLevel   compression.FLevel
	hasDetectedLevel bool
}

// NewHeader returns an empty header with no attributes set.
func NewHeader() *Header {
	return &Header{
		index:   make(map[string]int),
		options: CompressionOptions{ZIPLevel: compression.CompressionLevelDefault},
	}
}

// NewScanlineHeader returns a header for a width x height flat scanline
// image with a 3-channel half-float RGB layout, ZIP compression, and the
// display window equal to the data window. Callers typically replace the
// channel list before writing the file.
func NewScanlineHeader(width, height int) *Header {
	h := NewHeader()
	dw := Box2i{Min: V2i{0, 0}, Max: V2i{int32(width) - 1, int32(height) - 1}}
	cl := NewChannelList()
	cl.Add(NewChannel("R", PixelTypeHalf))
	cl.Add(NewChannel("G", PixelTypeHalf))
	cl.Add(NewChannel("B", PixelTypeHalf))

	h.SetChannels(cl)
	h.SetCompression(CompressionZIP)
	h.SetDataWindow(dw)
	h.SetDisplayWindow(dw)
	h.SetLineOrder(LineOrderIncreasing)
	h.SetPixelAspectRatio(1.0)
	h.SetScreenWindowCenter(V2f{0, 0})
	h.SetScreenWindowWidth(1.0)
	return h
}

// NewTiledHeader returns a header for a width x height tiled image with
// tileWidth x tileHeight single-level tiles, otherwise identical in
// defaults to NewScanlineHeader.
func NewTiledHeader(width, height, tileWidth, tileHeight int) *Header {
	h := NewScanlineHeader(width, height)
	h.SetTileDescription(TileDescription{
		XSize: uint32(tileWidth),
		YSize: uint32(tileHeight),
		Mode:  LevelModeOne,
	})
	return h
}

// Set inserts attr, replacing any existing attribute with the same name
// while preserving its original position.
func (h *Header) Set(attr *Attribute) {
	if i, ok := h.index[attr.Name]; ok {
		h.attrs[i] = attr
		return
	}
	h.index[attr.Name] = len(h.attrs)
	h.attrs = append(h.attrs, attr)
}

// Get returns the attribute named name, or nil if it is not set.
func (h *Header) Get(name string) *Attribute {
	if i, ok := h.index[name]; ok {
		return h.attrs[i]
	}
	return nil
}

// Has reports whether an attribute named name is set.
func (h *Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Remove deletes the attribute named name, if present.
func (h *Header) Remove(name string) {
	i, ok := h.index[name]
	if !ok {
		return
	}
	h.attrs = append(h.attrs[:i], h.attrs[i+1:]...)
	delete(h.index, name)
	for name, idx := range h.index {
		if idx > i {
			h.index[name] = idx - 1
		}
	}
}

// Attributes returns every attribute in the header, in insertion order.
func (h *Header) Attributes() []*Attribute {
	out := make([]*Attribute, len(h.attrs))
	copy(out, h.attrs)
	return out
}

// SetChannels sets the required "channels" attribute.
func (h *Header) SetChannels(cl *ChannelList) {
	h.Set(&Attribute{Name: attrChannels, Type: AttrTypeChlist, Value: cl})
}

// Channels returns the channel list, or nil if unset.
func (h *Header) Channels() *ChannelList {
	a := h.Get(attrChannels)
	if a == nil {
		return nil
	}
	cl, _ := a.Value.(*ChannelList)
	return cl
}

// SetCompression sets the required "compression" attribute.
func (h *Header) SetCompression(c Compression) {
	h.Set(&Attribute{Name: attrCompression, Type: AttrTypeCompression, Value: c})
}

// Compression returns the compression method, defaulting to
// CompressionNone when unset.
func (h *Header) Compression() Compression {
	a := h.Get(attrCompression)
	if a == nil {
		return CompressionNone
	}
	c, _ := a.Value.(Compression)
	return c
}

// SetDataWindow sets the required "dataWindow" attribute.
func (h *Header) SetDataWindow(b Box2i) {
	h.Set(&Attribute{Name: attrDataWindow, Type: AttrTypeBox2i, Value: b})
}

// DataWindow returns the data window, defaulting to the zero box when unset.
func (h *Header) DataWindow() Box2i {
	a := h.Get(attrDataWindow)
	if a == nil {
		return Box2i{}
	}
	b, _ := a.Value.(Box2i)
	return b
}

// SetDisplayWindow sets the required "displayWindow" attribute.
func (h *Header) SetDisplayWindow(b Box2i) {
	h.Set(&Attribute{Name: attrDisplayWindow, Type: AttrTypeBox2i, Value: b})
}

// DisplayWindow returns the display window, defaulting to the zero box
// when unset.
func (h *Header) DisplayWindow() Box2i {
	a := h.Get(attrDisplayWindow)
	if a == nil {
		return Box2i{}
	}
	b, _ := a.Value.(Box2i)
	return b
}

// SetLineOrder sets the required "lineOrder" attribute.
func (h *Header) SetLineOrder(lo LineOrder) {
	h.Set(&Attribute{Name: attrLineOrder, Type: AttrTypeLineOrder, Value: lo})
}

// LineOrder returns the scanline storage order, defaulting to
// LineOrderIncreasing when unset.
func (h *Header) LineOrder() LineOrder {
	a := h.Get(attrLineOrder)
	if a == nil {
		return LineOrderIncreasing
	}
	lo, _ := a.Value.(LineOrder)
	return lo
}

// SetPixelAspectRatio sets the required "pixelAspectRatio" attribute.
func (h *Header) SetPixelAspectRatio(ratio float32) {
	h.Set(&Attribute{Name: attrPixelAspectRatio, Type: AttrTypeFloat, Value: ratio})
}

// PixelAspectRatio returns the pixel aspect ratio, defaulting to 1.0
// when unset.
func (h *Header) PixelAspectRatio() float32 {
	a := h.Get(attrPixelAspectRatio)
	if a == nil {
		return 1.0
	}
	v, _ := a.Value.(float32)
	return v
}

// SetScreenWindowCenter sets the required "screenWindowCenter" attribute.
func (h *Header) SetScreenWindowCenter(c V2f) {
	h.Set(&Attribute{Name: attrScreenWindowCenter, Type: AttrTypeV2f, Value: c})
}

// ScreenWindowCenter returns the screen window center, defaulting to the
// zero vector when unset.
func (h *Header) ScreenWindowCenter() V2f {
	a := h.Get(attrScreenWindowCenter)
	if a == nil {
		return V2f{}
	}
	v, _ := a.Value.(V2f)
	return v
}

// SetScreenWindowWidth sets the required "screenWindowWidth" attribute.
func (h *Header) SetScreenWindowWidth(w float32) {
	h.Set(&Attribute{Name: attrScreenWindowWidth, Type: AttrTypeFloat, Value: w})
}

// ScreenWindowWidth returns the screen window width, defaulting to 1.0
// when unset.
func (h *Header) ScreenWindowWidth() float32 {
	a := h.Get(attrScreenWindowWidth)
	if a == nil {
		return 1.0
	}
	v, _ := a.Value.(float32)
	return v
}

// IsTiled reports whether the header carries a "tiles" attribute.
func (h *Header) IsTiled() bool {
	return h.Has(attrTiles)
}

// SetTileDescription sets the optional "tiles" attribute, marking the
// part as tiled.
func (h *Header) SetTileDescription(td TileDescription) {
	h.Set(&Attribute{Name: attrTiles, Type: AttrTypeTileDesc, Value: td})
}

// TileDescription returns the tile description, or nil if the part is
// not tiled.
func (h *Header) TileDescription() *TileDescription {
	a := h.Get(attrTiles)
	if a == nil {
		return nil
	}
	td, ok := a.Value.(TileDescription)
	if !ok {
		return nil
	}
	return &td
}

// Width returns the data window's width in pixels.
func (h *Header) Width() int {
	return int(h.DataWindow().Width())
}

// Height returns the data window's height in pixels.
func (h *Header) Height() int {
	return int(h.DataWindow().Height())
}

// HasPreview reports whether the header carries a preview thumbnail.
func (h *Header) HasPreview() bool {
	return h.Has("preview")
}

// ZIPLevel returns the zlib compression level recorded in the header's options.
func (h *Header) ZIPLevel() compression.CompressionLevel {
	return h.options.ZIPLevel
}

// SetZIPLevel records the zlib compression level in the header's options.
func (h *Header) SetZIPLevel(level compression.CompressionLevel) {
	h.options.ZIPLevel = level
}

// CompressionOptions returns the codec tuning options attached to the header.
func (h *Header) CompressionOptions() CompressionOptions {
	return h.options
}

// SetCompressionOptions replaces the codec tuning options attached to the header.
func (h *Header) SetCompressionOptions(opts CompressionOptions) {
	h.options = opts
}

// DetectedFLevel returns the zlib FLEVEL recorded for this header by
// setDetectedFLevel, and whether one has been recorded. No read path in
// this module records one, so a header read from a file reports false.
func (h *Header) DetectedFLevel() (compression.FLevel, bool) {
	return h.detectedFLevel, h.hasDetectedLevel
}

// setDetectedFLevel records fl as the header's detected FLEVEL. Nothing
// in this module calls it.
func (h *Header) setDetectedFLevel(fl compression.FLevel) {
	h.detectedFLevel = fl
	h.hasDetectedLevel = true
}

// DWACompressionLevel returns the DWA quantization level, defaulting to
// DefaultDWACompressionLevel when unset.
func (h *Header) DWACompressionLevel() float32 {
	a := h.Get(attrDWACompressLevel)
	if a == nil {
		return DefaultDWACompressionLevel
	}
	v, _ := a.Value.(float32)
	return v
}

// SetDWACompressionLevel sets the DWA quantization level.
func (h *Header) SetDWACompressionLevel(level float32) {
	h.Set(&Attribute{Name: attrDWACompressLevel, Type: AttrTypeFloat, Value: level})
}

// Validate checks that every required attribute is present and
// internally consistent, per the OpenEXR required-attribute contract.
func (h *Header) Validate() error {
	for _, name := range []string{
		attrChannels, attrCompression, attrDataWindow, attrDisplayWindow,
		attrLineOrder, attrPixelAspectRatio, attrScreenWindowCenter, attrScreenWindowWidth,
	} {
		if !h.Has(name) {
			return &MissingError{Name: name}
		}
	}

	cl := h.Channels()
	if cl == nil || cl.Len() == 0 {
		return &InvalidError{What: Invalidity{Name: attrChannels, Reason: "channel list is empty"}}
	}

	dw := h.DataWindow()
	if dw.IsEmpty() {
		return &InvalidError{What: Invalidity{Name: attrDataWindow, Reason: "data window is empty or inverted"}}
	}

	if h.IsTiled() {
		td := h.TileDescription()
		if td.XSize == 0 || td.YSize == 0 {
			return &InvalidError{What: Invalidity{Name: attrTiles, Reason: "tile dimensions must be positive"}}
		}
		if h.LineOrder() == LineOrderRandom {
			return &InvalidError{What: Invalidity{Name: attrLineOrder, Reason: "randomY line order is not valid for tiled parts"}}
		}
	}

	return nil
}

// numLevels returns the number of mip/rip levels a dimension of the
// given size produces under roundingMode. Returns 0 for non-positive
// sizes.
func numLevels(size int, roundingMode LevelRoundingMode) int {
	if size <= 0 {
		return 0
	}
	n := 1
	for size > 1 {
		if roundingMode == LevelRoundUp {
			size = (size + 1) / 2
		} else {
			size = size / 2
		}
		n++
	}
	return n
}

// levelSize returns the pixel extent of a single dimension at the given
// level, halving fullSize level times under roundingMode, clamped to 1.
func levelSize(fullSize int, level int, roundingMode LevelRoundingMode) int {
	size := fullSize
	for i := 0; i < level; i++ {
		if roundingMode == LevelRoundUp {
			size = (size + 1) / 2
		} else {
			size = size / 2
		}
		if size < 1 {
			size = 1
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}

// NumXLevels returns the number of resolution levels along X.
func (h *Header) NumXLevels() int {
	td := h.TileDescription()
	if td == nil {
		return 1
	}
	switch td.Mode {
	case LevelModeOne:
		return 1
	case LevelModeMipmap:
		return numLevels(max(h.Width(), h.Height()), td.RoundingMode)
	case LevelModeRipmap:
		return numLevels(h.Width(), td.RoundingMode)
	default:
		return 1
	}
}

// NumYLevels returns the number of resolution levels along Y.
func (h *Header) NumYLevels() int {
	td := h.TileDescription()
	if td == nil {
		return 1
	}
	switch td.Mode {
	case LevelModeOne:
		return 1
	case LevelModeMipmap:
		return numLevels(max(h.Width(), h.Height()), td.RoundingMode)
	case LevelModeRipmap:
		return numLevels(h.Height(), td.RoundingMode)
	default:
		return 1
	}
}

// LevelWidth returns the pixel width of resolution level level. Negative
// levels return the full-resolution width; levels beyond the smallest
// level are clamped to 1.
func (h *Header) LevelWidth(level int) int {
	if level < 0 {
		return h.Width()
	}
	td := h.TileDescription()
	rounding := LevelRoundDown
	if td != nil {
		rounding = td.RoundingMode
	}
	return levelSize(h.Width(), level, rounding)
}

// LevelHeight returns the pixel height of resolution level level.
// Negative levels return the full-resolution height; levels beyond the
// smallest level are clamped to 1.
func (h *Header) LevelHeight(level int) int {
	if level < 0 {
		return h.Height()
	}
	td := h.TileDescription()
	rounding := LevelRoundDown
	if td != nil {
		rounding = td.RoundingMode
	}
	return levelSize(h.Height(), level, rounding)
}

// NumXTiles returns the number of tile columns at the given level, or 0
// if the header is not tiled.
func (h *Header) NumXTiles(level int) int {
	td := h.TileDescription()
	if td == nil {
		return 0
	}
	w := h.LevelWidth(level)
	return (w + int(td.XSize) - 1) / int(td.XSize)
}

// NumYTiles returns the number of tile rows at the given level, or 0 if
// the header is not tiled.
func (h *Header) NumYTiles(level int) int {
	td := h.TileDescription()
	if td == nil {
		return 0
	}
	ht := h.LevelHeight(level)
	return (ht + int(td.YSize) - 1) / int(td.YSize)
}

// ChunksInFile returns the number of chunks a flat (non-deep) part with
// this header occupies, per spec.md's legacy chunk-count formula.
func (h *Header) ChunksInFile() int {
	td := h.TileDescription()
	if td == nil {
		spc := h.Compression().ScanlinesPerChunk()
		return (h.Height() + spc - 1) / spc
	}

	switch td.Mode {
	case LevelModeOne:
		return h.NumXTiles(0) * h.NumYTiles(0)
	case LevelModeMipmap:
		total := 0
		for l := 0; l < h.NumXLevels(); l++ {
			total += h.NumXTiles(l) * h.NumYTiles(l)
		}
		return total
	case LevelModeRipmap:
		total := 0
		for ly := 0; ly < h.NumYLevels(); ly++ {
			for lx := 0; lx < h.NumXLevels(); lx++ {
				total += h.NumXTiles(lx) * h.NumYTiles(ly)
			}
		}
		return total
	default:
		return 0
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ReadHeader reads an ordered attribute list terminated by an empty
// attribute name, per spec.md §4.3.
func ReadHeader(r xdr.ByteReader) (*Header, error) {
	h := NewHeader()
	for {
		attr, err := ReadAttribute(r)
		if err != nil {
			return nil, fmt.Errorf("exr: reading header attribute: %w", err)
		}
		if attr == nil {
			break
		}
		h.Set(attr)
	}
	return h, nil
}

// WriteHeader writes h's attributes in insertion order — the order Set
// first added each name — followed by the empty-name terminator. A
// header built by ReadHeader therefore round-trips through WriteHeader
// byte-for-byte, including the order of vendor-specific attributes
// this package knows nothing about.
func WriteHeader(w *xdr.BufferWriter, h *Header) error {
	for _, attr := range h.attrs {
		if err := WriteAttribute(w, attr); err != nil {
			return fmt.Errorf("exr: writing attribute %q: %w", attr.Name, err)
		}
	}
	w.WriteByte(0)
	return nil
}

// attributeNames returns the header's attribute names in insertion
// order, the same order WriteHeader emits them in.
func (h *Header) attributeNames() []string {
	names := make([]string, len(h.attrs))
	for i, a := range h.attrs {
		names[i] = a.Name
	}
	return names
}

// SerializeForTest encodes h exactly as WriteHeader would, as a
// convenience for determinism and round-trip tests.
func (h *Header) SerializeForTest() []byte {
	bw := xdr.NewBufferWriter(1024)
	WriteHeader(bw, h)
	return bw.Bytes()
}

// ReadHeaderFromBytes decodes a single header from data, as written by
// WriteHeader.
func ReadHeaderFromBytes(data []byte) (*Header, error) {
	return ReadHeader(xdr.NewReader(data))
}
