// Package codec reads and writes record streams. A stream is a plain
// sequence of self-describing frames with no global header, so the
// concatenation of two streams is itself a stream.
//
// Frame layout:
//
//	magic    4 bytes  "UHER"
//	version  1 byte   0x01
//	flags    1 byte   bit0: payload is lz4 block-compressed
//	length   uvarint  stored payload length
//	rawlen   uvarint  uncompressed payload length, only when bit0 is set
//	payload  protobuf wire encoded record
//	checksum 8 bytes  little-endian xxhash64 of the uncompressed payload
package codec

import (
	"errors"
	"fmt"
)

var magic = [4]byte{'U', 'H', 'E', 'R'}

const (
	version = 0x01

	flagLZ4 = 1 << 0

	// maxPayload bounds the allocation made for a single frame.
	maxPayload = 64 << 20
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("malformed record stream")

// FormatError reports a truncated or structurally invalid frame. It is fatal
// to the stream: the decoder does not try to resynchronize.
type FormatError struct {
	Record int   // index of the failing frame
	Offset int64 // byte offset of the frame start
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	s := fmt.Sprintf("record %d at offset %d: %s", e.Record, e.Offset, e.Reason)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }
