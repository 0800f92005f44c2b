package exr

import (
	"sort"
	"strings"

	"github.com/pixelgrove/openexr/internal/xdr"
)

// PixelType identifies the storage representation of a channel's samples.
type PixelType int32

const (
	// PixelTypeUint stores samples as unsigned 32-bit integers.
	PixelTypeUint PixelType = 0
	// PixelTypeHalf stores samples as IEEE 754 binary16 floats.
	PixelTypeHalf PixelType = 1
	// PixelTypeFloat stores samples as IEEE 754 binary32 floats.
	PixelTypeFloat PixelType = 2
)

// String returns a string representation of the pixel type.
func (p PixelType) String() string {
	switch p {
	case PixelTypeUint:
		return "uint"
	case PixelTypeHalf:
		return "half"
	case PixelTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes a single sample of this type occupies,
// or 0 if the type is not recognized.
func (p PixelType) Size() int {
	switch p {
	case PixelTypeUint, PixelTypeFloat:
		return 4
	case PixelTypeHalf:
		return 2
	default:
		return 0
	}
}

// Channel describes one named sample plane within a part's channel list.
type Channel struct {
	Name      string
	Type      PixelType
	PLinear   bool
	XSampling int32
	YSampling int32
}

// NewChannel returns a Channel with the given name and type, sampled 1x1.
func NewChannel(name string, pixelType PixelType) Channel {
	return Channel{Name: name, Type: pixelType, XSampling: 1, YSampling: 1}
}

// Layer returns the layer prefix of a dotted channel name, e.g.
// "light.specular.R" has layer "light.specular". A channel with no dot
// belongs to the root layer, represented by the empty string.
func (c Channel) Layer() string {
	i := strings.LastIndex(c.Name, ".")
	if i < 0 {
		return ""
	}
	return c.Name[:i]
}

// BaseName returns the channel name with any layer prefix stripped.
func (c Channel) BaseName() string {
	i := strings.LastIndex(c.Name, ".")
	if i < 0 {
		return c.Name
	}
	return c.Name[i+1:]
}

// ChannelList is the ordered, name-sorted set of channels in a header.
type ChannelList struct {
	channels []Channel
}

// NewChannelList returns an empty channel list.
func NewChannelList() *ChannelList {
	return &ChannelList{}
}

// Add inserts c in name-sorted order. It reports false without modifying
// the list if a channel with the same name already exists.
func (cl *ChannelList) Add(c Channel) bool {
	i := sort.Search(len(cl.channels), func(i int) bool {
		return cl.channels[i].Name >= c.Name
	})
	if i < len(cl.channels) && cl.channels[i].Name == c.Name {
		return false
	}
	cl.channels = append(cl.channels, Channel{})
	copy(cl.channels[i+1:], cl.channels[i:])
	cl.channels[i] = c
	return true
}

// Len returns the number of channels in the list.
func (cl *ChannelList) Len() int {
	return len(cl.channels)
}

// Get returns a pointer to the channel named name, or nil if absent.
func (cl *ChannelList) Get(name string) *Channel {
	for i := range cl.channels {
		if cl.channels[i].Name == name {
			return &cl.channels[i]
		}
	}
	return nil
}

// At returns the channel at index i.
func (cl *ChannelList) At(i int) Channel {
	return cl.channels[i]
}

// Names returns the names of every channel, in list order.
func (cl *ChannelList) Names() []string {
	names := make([]string, len(cl.channels))
	for i, c := range cl.channels {
		names[i] = c.Name
	}
	return names
}

// Channels returns a copy of the underlying channel slice.
func (cl *ChannelList) Channels() []Channel {
	out := make([]Channel, len(cl.channels))
	copy(out, cl.channels)
	return out
}

// HasRGB reports whether the list contains R, G, and B channels.
func (cl *ChannelList) HasRGB() bool {
	return cl.Get("R") != nil && cl.Get("G") != nil && cl.Get("B") != nil
}

// HasAlpha reports whether the list contains an A channel.
func (cl *ChannelList) HasAlpha() bool {
	return cl.Get("A") != nil
}

// HasRGBA reports whether the list contains R, G, B, and A channels.
func (cl *ChannelList) HasRGBA() bool {
	return cl.HasRGB() && cl.HasAlpha()
}

// Layers returns the distinct non-root layer prefixes present in the list.
func (cl *ChannelList) Layers() []string {
	seen := make(map[string]bool)
	var layers []string
	for _, c := range cl.channels {
		l := c.Layer()
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		layers = append(layers, l)
	}
	sort.Strings(layers)
	return layers
}

// ChannelsInLayer returns the channels whose Layer() equals layer.
func (cl *ChannelList) ChannelsInLayer(layer string) []Channel {
	var out []Channel
	for _, c := range cl.channels {
		if c.Layer() == layer {
			out = append(out, c)
		}
	}
	return out
}

// SortByName restores the name-sorted invariant required on the wire.
func (cl *ChannelList) SortByName() {
	sort.Slice(cl.channels, func(i, j int) bool {
		return cl.channels[i].Name < cl.channels[j].Name
	})
}

// SortForCompression reorders channels by pixel type then name, grouping
// same-type samples together.
func (cl *ChannelList) SortForCompression() {
	sort.Slice(cl.channels, func(i, j int) bool {
		if cl.channels[i].Type != cl.channels[j].Type {
			return cl.channels[i].Type < cl.channels[j].Type
		}
		return cl.channels[i].Name < cl.channels[j].Name
	})
}

// BytesPerPixel returns the sum of each channel's sample size, ignoring
// subsampling. Useful for un-subsampled interleaved buffers.
func (cl *ChannelList) BytesPerPixel() int {
	total := 0
	for _, c := range cl.channels {
		total += c.Type.Size()
	}
	return total
}

// BytesPerScanline returns the number of bytes a single scanline of width
// pixels occupies, accounting for each channel's X subsampling.
func (cl *ChannelList) BytesPerScanline(width int) int {
	total := 0
	for _, c := range cl.channels {
		xs := int(c.XSampling)
		if xs < 1 {
			xs = 1
		}
		samples := (width + xs - 1) / xs
		total += samples * c.Type.Size()
	}
	return total
}

// ReadChannelList reads a null-terminated sequence of channel records.
// The wire format requires channels to be unique and in strictly
// increasing name order; a list that violates this is rejected with
// InvalidError rather than silently re-sorted, so a corrupt or
// hand-crafted file is caught here instead of surfacing as confusing
// pixel-assembly bugs downstream.
func ReadChannelList(r xdr.ByteReader) (*ChannelList, error) {
	cl := NewChannelList()
	for {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}

		typ, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		pLinear, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadBytes(3); err != nil {
			return nil, err
		}
		xSampling, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		ySampling, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}

		if n := len(cl.channels); n > 0 && cl.channels[n-1].Name >= name {
			return nil, &InvalidError{What: Invalidity{
				Name:   "channels",
				Reason: "channel list is not in strictly increasing name order: " + cl.channels[n-1].Name + " >= " + name,
			}}
		}

		cl.channels = append(cl.channels, Channel{
			Name:      name,
			Type:      PixelType(typ),
			PLinear:   pLinear != 0,
			XSampling: xSampling,
			YSampling: ySampling,
		})
	}
	return cl, nil
}

// WriteChannelList writes cl as a null-terminated sequence of channel
// records, in the order already held by the list. It does not itself
// validate or re-sort: cl.Add already keeps channels unique and
// name-sorted, so the only way to hand WriteChannelList an invalid list
// is to build a ChannelList by direct field access, bypassing Add. Call
// SortByName first if the caller cannot guarantee the name-sorted
// invariant that way; ReadChannelList enforces the invariant on the
// read side so a list violating it never survives a round trip
// undetected.
func WriteChannelList(w *xdr.BufferWriter, cl *ChannelList) {
	for _, c := range cl.channels {
		w.WriteString(c.Name)
		w.WriteInt32(int32(c.Type))
		if c.PLinear {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		w.WriteBytes([]byte{0, 0, 0})
		w.WriteInt32(c.XSampling)
		w.WriteInt32(c.YSampling)
	}
	w.WriteByte(0)
}
