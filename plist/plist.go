// Package plist provides a thin, size-bounded wrapper around Apple binary
// property lists for the AirDrop wire formats. Field name mapping is
// delegated to howett.net/plist's own `plist:"name"` struct tag support.
package plist

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	applist "howett.net/plist"
)

// MaxSize is the hard cap on both input and output plist buffers.
const MaxSize = 1 << 20 // 1 MiB

// ErrTooLarge is returned when a buffer exceeds MaxSize.
var ErrTooLarge = errors.New("plist: buffer exceeds 1 MiB cap")

// Decode parses a binary plist buffer into v, which should be a pointer to
// a struct, map, or slice as accepted by howett.net/plist.
func Decode(data []byte, v any) error {
	if len(data) > MaxSize {
		return ErrTooLarge
	}

	dec := applist.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("plist: decode: %w", err)
	}
	return nil
}

// Encode serializes v as an Apple binary plist.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := applist.NewEncoderForFormat(&buf, applist.BinaryFormat)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plist: encode: %w", err)
	}

	if buf.Len() > MaxSize {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// DecodeReader is like Decode but reads from an io.Reader, enforcing the
// size cap while reading rather than requiring the caller to buffer first.
func DecodeReader(r io.Reader, v any) error {
	limited := io.LimitReader(r, MaxSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("plist: read: %w", err)
	}
	return Decode(data, v)
}
