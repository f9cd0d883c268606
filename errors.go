package tiled

import (
	"errors"
	"fmt"
)

var (
	errNotArrayOrString = errors.New("expected an array or a string")
	errNotPositive      = errors.New("must be positive")
	errNegative         = errors.New("must not be negative")
	errMissing          = errors.New("missing")
)

// IOError is returned when a map or tileset file cannot be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("unable to read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError is returned for malformed documents, or documents missing a
// structural field we need. Field is empty when the document as a whole
// could not be parsed.
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError is returned when a document parses but describes something we
// can't (or won't) work with, eg. a zero width or a hexagonal map.
type SchemaError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// DataSizeError is returned when a decoded layer or chunk holds a different
// number of tile IDs than its dimensions require. Chunk is -1 for finite
// layers.
type DataSizeError struct {
	Layer    string
	Chunk    int
	Expected int
	Actual   int
}

func (e *DataSizeError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("layer %q: expected %d tiles, got %d", e.Layer, e.Expected, e.Actual)
	}
	return fmt.Sprintf("layer %q chunk %d: expected %d tiles, got %d", e.Layer, e.Chunk, e.Expected, e.Actual)
}

// InvalidTokenError is returned by the CSV decoder for a token that isn't an
// unsigned 32bit integer. Index is the token number, Offset its byte offset
// in the payload.
type InvalidTokenError struct {
	Token  string
	Index  int
	Offset int
	Err    error
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid token %q (token %d, offset %d)", e.Token, e.Index, e.Offset)
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// Base64Error is returned when layer data isn't valid base64.
type Base64Error struct {
	Offset int64
	Err    error
}

func (e *Base64Error) Error() string {
	return fmt.Sprintf("invalid base64 data at offset %d", e.Offset)
}

func (e *Base64Error) Unwrap() error { return e.Err }

// CompressionCause is a machine readable reason for a CompressionError
type CompressionCause string

const (
	CauseCorrupt     CompressionCause = "corrupt-stream"
	CauseTruncated   CompressionCause = "truncated-stream"
	CauseUnsupported CompressionCause = "unsupported-format"
)

// CompressionError is returned when compressed layer data can't be inflated.
// InputSize is the size of the compressed input in bytes.
type CompressionError struct {
	Format    Compression
	Cause     CompressionCause
	InputSize int
	Err       error
}

func (e *CompressionError) Error() string {
	msg := fmt.Sprintf("%s decompression failed (%s, %d input bytes)", e.Format, e.Cause, e.InputSize)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompressionError) Unwrap() error { return e.Err }

// MalformedDataError is returned when decoded tile data isn't a whole number
// of 32bit IDs. Extra is the number of trailing bytes, Missing the number of
// bytes needed to complete the last ID.
type MalformedDataError struct {
	Length  int
	Extra   int
	Missing int
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("tile data is %d bytes, not a multiple of 4 (%d extra, %d missing)", e.Length, e.Extra, e.Missing)
}
