package exr

import "fmt"

// Invalidity describes one reason a header or chunk failed validation.
type Invalidity struct {
	Name   string // attribute or field name the problem concerns
	Reason string // human-readable description of the violated invariant
}

func (v Invalidity) String() string {
	if v.Name == "" {
		return v.Reason
	}
	return fmt.Sprintf("%s: %s", v.Name, v.Reason)
}

// NotTheExpectedFormatError indicates the input does not begin with the
// OpenEXR magic number, so it cannot be parsed as an OpenEXR file at all.
type NotTheExpectedFormatError struct{}

func (e *NotTheExpectedFormatError) Error() string {
	return "exr: not the expected format (bad magic number)"
}

// InvalidError indicates the input parses as OpenEXR but violates a
// structural invariant (for example, an empty data window).
type InvalidError struct {
	What Invalidity
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("exr: invalid: %s", e.What)
}

// MissingError indicates a required attribute is absent from a header.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("exr: missing required attribute %q", e.Name)
}

// UnknownAttributeTypeError indicates an attribute's type tag is not one
// this module recognizes. BytesToSkip is the size of the value payload,
// letting a caller skip over it and continue parsing the rest of the
// header without losing synchronization with the byte stream.
type UnknownAttributeTypeError struct {
	BytesToSkip int
}

func (e *UnknownAttributeTypeError) Error() string {
	return fmt.Sprintf("exr: unknown attribute type (%d bytes to skip)", e.BytesToSkip)
}

// NotSupportedError indicates the input is well-formed OpenEXR but uses
// a feature this module deliberately does not implement.
type NotSupportedError struct {
	Reason string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("exr: not supported: %s", e.Reason)
}
