// Package exrutil provides EXR-specific utility functions.
//
// This package offers higher-level operations for working with OpenEXR files:
// file information, validation, layer introspection, and metadata management.
//
// Example usage:
//
//	info, _ := exrutil.GetFileInfo("render.exr")
//	fmt.Printf("Size: %dx%d, Channels: %v\n", info.Width, info.Height, info.Channels)
package exrutil

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pixelgrove/openexr/exr"
)

// ===========================================
// File Information
// ===========================================

// FileInfo provides a summary of an EXR file.
type FileInfo struct {
	Path        string
	Width       int
	Height      int
	Compression exr.Compression
	IsTiled     bool
	TileWidth   int
	TileHeight  int
	IsDeep      bool
	IsMultiPart bool
	NumParts    int
	Channels    []string
	HasPreview  bool
	FileSize    int64
}

// GetFileInfo returns summary information about an EXR file, read from
// part 0's header.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := exr.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := f.Header(0)
	info := &FileInfo{
		Path:        path,
		Width:       h.Width(),
		Height:      h.Height(),
		Compression: h.Compression(),
		IsTiled:     h.IsTiled(),
		IsDeep:      f.IsDeep(),
		IsMultiPart: f.IsMultiPart(),
		NumParts:    f.NumParts(),
		HasPreview:  h.HasPreview(),
		FileSize:    stat.Size(),
	}

	if cl := h.Channels(); cl != nil {
		for _, ch := range cl.Channels() {
			info.Channels = append(info.Channels, ch.Name)
		}
	}

	if info.IsTiled {
		if td := h.TileDescription(); td != nil {
			info.TileWidth = int(td.XSize)
			info.TileHeight = int(td.YSize)
		}
	}

	return info, nil
}

// ===========================================
// Layer Utilities
// ===========================================

// SplitLayers returns channel names grouped by layer (dot-separated prefix).
// Channels without a layer prefix are grouped under an empty string key.
func SplitLayers(h *exr.Header) map[string][]string {
	layers := make(map[string][]string)

	cl := h.Channels()
	if cl == nil {
		return layers
	}

	for _, ch := range cl.Channels() {
		layer := ""
		name := ch.Name

		if idx := strings.LastIndex(ch.Name, "."); idx >= 0 {
			layer = ch.Name[:idx]
			name = ch.Name[idx+1:]
		}

		layers[layer] = append(layers[layer], name)
	}

	return layers
}

// ListLayers returns a sorted list of layer names in the file.
// Returns an empty slice if there are no layers (all channels at root level).
func ListLayers(h *exr.Header) []string {
	layerMap := SplitLayers(h)

	var layers []string
	for layer := range layerMap {
		if layer != "" {
			layers = append(layers, layer)
		}
	}

	sort.Strings(layers)
	return layers
}

// ===========================================
// Validation
// ===========================================

// ValidationResult contains the results of file validation.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// ValidateFile performs comprehensive validation of an EXR file's
// container structure and part-0 header, without touching chunk payloads.
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{Valid: true}

	stat, err := os.Stat(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("cannot access file: %v", err))
		return result, nil
	}

	if stat.Size() < 8 {
		result.Valid = false
		result.Errors = append(result.Errors, "file too small to be valid EXR")
		return result, nil
	}

	f, err := exr.OpenFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("cannot open file: %v", err))
		return result, nil
	}
	defer f.Close()

	h := f.Header(0)

	if err := h.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("header validation failed: %v", err))
	}

	if h.Width() == 0 || h.Height() == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "image has zero dimensions")
	}

	cl := h.Channels()
	if cl == nil || cl.Len() == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "no channels defined")
	}

	if h.Width() > 32768 || h.Height() > 32768 {
		result.Warnings = append(result.Warnings, "very large image dimensions")
	}

	if cl != nil && cl.Len() > 100 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("large number of channels: %d", cl.Len()))
	}

	comp := h.Compression()
	if comp > exr.CompressionHTJ2K32 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown compression type: %d", comp))
	}

	return result, nil
}

// ===========================================
// Metadata
// ===========================================

// CopyMetadata copies all metadata attributes from src to dst header.
// This excludes structural attributes like channels, dataWindow, etc.
func CopyMetadata(src, dst *exr.Header) {
	structural := map[string]bool{
		"channels":           true,
		"compression":        true,
		"dataWindow":         true,
		"displayWindow":      true,
		"lineOrder":          true,
		"pixelAspectRatio":   true,
		"screenWindowCenter": true,
		"screenWindowWidth":  true,
		"tiles":              true,
		"type":               true,
		"name":               true,
		"version":            true,
		"chunkCount":         true,
	}

	for _, attr := range src.Attributes() {
		if !structural[attr.Name] {
			dst.Set(attr)
		}
	}
}

// CompareHeaders reports structural differences between two headers:
// dimensions, channel sets, and (unless ignoreMetadata) compression.
// It never touches chunk payloads, so it is cheap to run on files whose
// pixel data has not been decoded.
func CompareHeaders(h1, h2 *exr.Header, ignoreMetadata bool) []string {
	var diffs []string

	if h1.Width() != h2.Width() || h1.Height() != h2.Height() {
		diffs = append(diffs, fmt.Sprintf("dimensions differ: %dx%d vs %dx%d",
			h1.Width(), h1.Height(), h2.Width(), h2.Height()))
		return diffs
	}

	cl1, cl2 := h1.Channels(), h2.Channels()
	switch {
	case cl1 == nil && cl2 == nil:
		// no channels on either side, nothing further to compare
	case cl1 == nil:
		diffs = append(diffs, "header1 has no channels, header2 has channels")
		return diffs
	case cl2 == nil:
		diffs = append(diffs, "header1 has channels, header2 has no channels")
		return diffs
	default:
		if cl1.Len() != cl2.Len() {
			diffs = append(diffs, fmt.Sprintf("channel count differs: %d vs %d", cl1.Len(), cl2.Len()))
		}

		names1 := make(map[string]bool)
		for _, ch := range cl1.Channels() {
			names1[ch.Name] = true
		}
		names2 := make(map[string]bool)
		for _, ch := range cl2.Channels() {
			names2[ch.Name] = true
		}

		for _, ch := range cl1.Channels() {
			if !names2[ch.Name] {
				diffs = append(diffs, fmt.Sprintf("channel %q in header1 but not header2", ch.Name))
			}
		}
		for _, ch := range cl2.Channels() {
			if !names1[ch.Name] {
				diffs = append(diffs, fmt.Sprintf("channel %q in header2 but not header1", ch.Name))
			}
		}
	}

	if !ignoreMetadata && h1.Compression() != h2.Compression() {
		diffs = append(diffs, fmt.Sprintf("compression differs: %v vs %v", h1.Compression(), h2.Compression()))
	}

	return diffs
}
