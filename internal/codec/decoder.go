package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/decibelcooper/uhepipe/internal/event"
)

// Decoder reads frames one at a time with no look-ahead.
type Decoder struct {
	r    *countingReader
	grid event.EnergyGrid

	stored []byte
	raw    []byte

	count int
	err   error
}

// NewDecoder returns a decoder whose records carry profiles on grid. A
// profile stored on any other grid is a format error.
func NewDecoder(r io.Reader, grid event.EnergyGrid) *Decoder {
	return &Decoder{r: &countingReader{r: bufio.NewReader(r)}, grid: grid}
}

// Decode returns the next record. It returns io.EOF only when the stream ends
// cleanly at a frame boundary; anything else that stops decoding is a
// *FormatError or an error from the underlying reader. Once Decode fails it
// keeps returning the same error.
func (d *Decoder) Decode() (*event.Record, error) {
	if d.err != nil {
		return nil, d.err
	}
	r, err := d.decode()
	if err != nil {
		d.err = err
		return nil, err
	}
	d.count++
	return r, nil
}

// Count returns the number of records decoded so far.
func (d *Decoder) Count() int { return d.count }

// Records iterates the remaining records. A terminal error other than io.EOF
// is yielded once with a nil record.
func (d *Decoder) Records() iter.Seq2[*event.Record, error] {
	return func(yield func(*event.Record, error) bool) {
		for {
			r, err := d.Decode()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

func (d *Decoder) fail(start int64, reason string, err error) error {
	return &FormatError{Record: d.count, Offset: start, Reason: reason, Err: err}
}

func (d *Decoder) decode() (*event.Record, error) {
	start := d.r.n

	var hdr [6]byte
	n, err := io.ReadFull(d.r, hdr[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, d.fail(start, "truncated header", err)
	case err != nil:
		return nil, err
	}
	if [4]byte(hdr[:4]) != magic {
		return nil, d.fail(start, fmt.Sprintf("bad magic %q", hdr[:4]), nil)
	}
	if hdr[4] != version {
		return nil, d.fail(start, fmt.Sprintf("unsupported version %d", hdr[4]), nil)
	}
	flags := hdr[5]
	if flags&^flagLZ4 != 0 {
		return nil, d.fail(start, fmt.Sprintf("unknown flags %#x", flags), nil)
	}

	length, err := d.length(start, "length")
	if err != nil {
		return nil, err
	}
	rawLength := length
	if flags&flagLZ4 != 0 {
		if rawLength, err = d.length(start, "raw length"); err != nil {
			return nil, err
		}
	}

	d.stored = grow(d.stored, length)
	if _, err := io.ReadFull(d.r, d.stored); err != nil {
		return nil, d.truncated(start, "payload", err)
	}
	var sum [8]byte
	if _, err := io.ReadFull(d.r, sum[:]); err != nil {
		return nil, d.truncated(start, "checksum", err)
	}

	payload := d.stored
	if flags&flagLZ4 != 0 {
		d.raw = grow(d.raw, rawLength)
		n, err := lz4.UncompressBlock(d.stored, d.raw)
		if err != nil {
			return nil, d.fail(start, "decompress", err)
		}
		if n != rawLength {
			return nil, d.fail(start, fmt.Sprintf("decompressed %d bytes, want %d", n, rawLength), nil)
		}
		payload = d.raw
	}

	if got, want := xxhash.Sum64(payload), binary.LittleEndian.Uint64(sum[:]); got != want {
		return nil, d.fail(start, fmt.Sprintf("checksum mismatch %016x != %016x", got, want), nil)
	}

	r, err := unmarshalRecord(payload, d.grid)
	if err != nil {
		return nil, d.fail(start, "payload", err)
	}
	return r, nil
}

func (d *Decoder) length(start int64, what string) (int, error) {
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		return 0, d.truncated(start, what, err)
	}
	if v > maxPayload {
		return 0, d.fail(start, fmt.Sprintf("%s %d exceeds limit", what, v), nil)
	}
	return int(v), nil
}

// truncated turns an end of input inside a frame into a FormatError. Other
// reader errors pass through.
func (d *Decoder) truncated(start int64, what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return d.fail(start, "truncated "+what, io.ErrUnexpectedEOF)
	}
	if errors.Is(err, binary.ErrOverflow) {
		return d.fail(start, "bad "+what, err)
	}
	return err
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
