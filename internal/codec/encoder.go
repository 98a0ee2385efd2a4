package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/decibelcooper/uhepipe/internal/event"
)

// Encoder appends frames to a writer. Frames are buffered; call Flush before
// closing the underlying writer.
type Encoder struct {
	w        *bufio.Writer
	compress bool
	comp     lz4.Compressor

	payload []byte
	zbuf    []byte
	frame   []byte

	count int
}

type EncoderOption func(*Encoder)

// WithCompression lz4-compresses each payload. Frames whose payload does not
// shrink are written uncompressed.
func WithCompression() EncoderOption {
	return func(e *Encoder) { e.compress = true }
}

func NewEncoder(w io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{w: bufio.NewWriter(w)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode writes r as one frame.
func (e *Encoder) Encode(r *event.Record) error {
	if err := validate(r); err != nil {
		return fmt.Errorf("encode record %d: %w", e.count, err)
	}
	e.payload = appendRecord(e.payload[:0], r)

	stored := e.payload
	var flags byte
	if e.compress {
		bound := lz4.CompressBlockBound(len(e.payload))
		if cap(e.zbuf) < bound {
			e.zbuf = make([]byte, bound)
		}
		e.zbuf = e.zbuf[:bound]
		n, err := e.comp.CompressBlock(e.payload, e.zbuf)
		if err != nil {
			return fmt.Errorf("encode record %d: compress: %w", e.count, err)
		}
		if n > 0 && n < len(e.payload) {
			stored = e.zbuf[:n]
			flags |= flagLZ4
		}
	}

	f := append(e.frame[:0], magic[:]...)
	f = append(f, version, flags)
	f = protowire.AppendVarint(f, uint64(len(stored)))
	if flags&flagLZ4 != 0 {
		f = protowire.AppendVarint(f, uint64(len(e.payload)))
	}
	f = append(f, stored...)
	f = binary.LittleEndian.AppendUint64(f, xxhash.Sum64(e.payload))
	e.frame = f

	if _, err := e.w.Write(f); err != nil {
		return fmt.Errorf("encode record %d: %w", e.count, err)
	}
	e.count++
	return nil
}

// Count returns the number of frames written so far.
func (e *Encoder) Count() int { return e.count }

func (e *Encoder) Flush() error {
	return e.w.Flush()
}
