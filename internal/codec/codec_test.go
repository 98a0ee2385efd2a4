package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/decibelcooper/uhepipe/internal/event"
)

func newRecord(t *testing.T, runID int64, weights ...event.Weight) *event.Record {
	t.Helper()
	mc := event.NewKinematics(event.Muon, 8.25)
	mc.Direction = event.Vec3{X: 0.6, Z: -0.8}
	mc.Origin = event.Vec3{X: -120, Y: 33, Z: 410}
	mc.GlobalDirection = event.Vec3{Y: 1}
	mc.GlobalOrigin = event.Vec3{X: 1e3, Y: 2e3, Z: 6.37e8}
	mc.Distance = 1.2e5
	reco := event.NewKinematics(event.Muon, 7.9)
	reco.Direction = event.Vec3{Z: -1}
	reco.Origin = event.Vec3{X: -100, Y: 40, Z: 400}

	r := event.New(runID, mc, reco, event.Observables{
		Npe: 2.5e5, NpeATWD: 2.1e5, NpeFADC: 2.4e5,
		NDOMs: 140, NDOMsFADC: 121,
		FirstGuessQuality: 0.35,
	})
	for _, w := range weights {
		require.NoError(t, r.Weights().Fill(w.Model, w.Value))
	}
	return r
}

func encodeAll(t *testing.T, opts []EncoderOption, recs ...*event.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, opts...)
	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, enc.Flush())
	return buf.Bytes()
}

func decodeAll(t *testing.T, data []byte) []*event.Record {
	t.Helper()
	dec := NewDecoder(bytes.NewReader(data), event.DefaultEnergyGrid)
	var out []*event.Record
	for {
		r, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, r)
	}
}

// rawFrame builds an uncompressed frame around an arbitrary payload.
func rawFrame(payload []byte) []byte {
	f := append([]byte{}, magic[:]...)
	f = append(f, version, 0)
	f = protowire.AppendVarint(f, uint64(len(payload)))
	f = append(f, payload...)
	return binary.LittleEndian.AppendUint64(f, xxhash.Sum64(payload))
}

func TestRoundTrip(t *testing.T) {
	profiled := newRecord(t, 7)
	p, err := event.NewProfile(event.DefaultEnergyGrid)
	require.NoError(t, err)
	require.NoError(t, p.SetAt(7.5, 0.25))
	require.NoError(t, p.SetAt(8.0, 0.5))
	profiled.SetProfile(p)
	require.NoError(t, profiled.SetPrimaryWeight(3.2e-2))
	profiled.SetView(event.MCTruth)

	tests := []struct {
		name string
		rec  *event.Record
	}{
		{"no weights", newRecord(t, 1)},
		{"one weight", newRecord(t, -42, event.Weight{Model: "corsika", Value: 1.5e-9})},
		{"several weights", newRecord(t, 89000,
			event.Weight{Model: "GZK_YT_4_4", Value: 2e-12},
			event.Weight{Model: "Elbert_2_04_3730", Value: 0},
			event.Weight{Model: "corsika", Value: 7.25e-8},
		)},
		{"profile and view", profiled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, opts := range [][]EncoderOption{nil, {WithCompression()}} {
				got := decodeAll(t, encodeAll(t, opts, tt.rec))
				require.Len(t, got, 1)
				if diff := cmp.Diff(tt.rec, got[0]); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
				assert.Equal(t, tt.rec.Weights().Entries(), got[0].Weights().Entries())
			}
		})
	}
}

func TestConcatenatedStreams(t *testing.T) {
	a := encodeAll(t, nil, newRecord(t, 1), newRecord(t, 2))
	b := encodeAll(t, []EncoderOption{WithCompression()}, newRecord(t, 3))

	got := decodeAll(t, append(append([]byte{}, a...), b...))
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.RunID)
	}
}

func TestEmptyStream(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil), event.DefaultEnergyGrid)
	_, err := dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestTruncatedFrame(t *testing.T) {
	data := encodeAll(t, nil, newRecord(t, 5, event.Weight{Model: "m", Value: 1}))

	for cut := 1; cut < len(data); cut++ {
		dec := NewDecoder(bytes.NewReader(data[:cut]), event.DefaultEnergyGrid)
		_, err := dec.Decode()
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, errors.Is(err, ErrFormat), "cut at %d: %v", cut, err)
		assert.False(t, errors.Is(err, io.EOF), "cut at %d", cut)
	}
}

func TestTruncatedSecondFrame(t *testing.T) {
	data := encodeAll(t, nil, newRecord(t, 1), newRecord(t, 2))
	dec := NewDecoder(bytes.NewReader(data[:len(data)-3]), event.DefaultEnergyGrid)

	r, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.RunID)

	_, err = dec.Decode()
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Record)
	assert.Equal(t, int64(len(data)/2), fe.Offset)

	_, again := dec.Decode()
	assert.Equal(t, err, again)
}

func TestChecksumMismatch(t *testing.T) {
	data := encodeAll(t, nil, newRecord(t, 1))
	data[len(data)-1] ^= 0xff

	_, err := NewDecoder(bytes.NewReader(data), event.DefaultEnergyGrid).Decode()
	require.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "checksum")
}

func TestBadMagicAndVersion(t *testing.T) {
	data := encodeAll(t, nil, newRecord(t, 1))

	bad := append([]byte{}, data...)
	bad[0] = 'X'
	_, err := NewDecoder(bytes.NewReader(bad), event.DefaultEnergyGrid).Decode()
	assert.ErrorIs(t, err, ErrFormat)

	bad = append([]byte{}, data...)
	bad[4] = 9
	_, err = NewDecoder(bytes.NewReader(bad), event.DefaultEnergyGrid).Decode()
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnknownFieldSkipped(t *testing.T) {
	want := newRecord(t, 11, event.Weight{Model: "corsika", Value: 4})
	payload := appendRecord(nil, want)
	payload = protowire.AppendTag(payload, 99, protowire.BytesType)
	payload = protowire.AppendString(payload, "from a newer writer")
	payload = protowire.AppendTag(payload, 100, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 12345)

	got := decodeAll(t, rawFrame(payload))
	require.Len(t, got, 1)
	assert.True(t, want.Equal(got[0]))
}

func TestDuplicateWeightRejected(t *testing.T) {
	payload := appendRecord(nil, newRecord(t, 1, event.Weight{Model: "dup", Value: 1}))
	var w []byte
	w = protowire.AppendTag(w, weightName, protowire.BytesType)
	w = protowire.AppendString(w, "dup")
	w = appendFloat(w, weightValue, 2)
	payload = appendMessage(payload, fieldWeight, w)

	_, err := NewDecoder(bytes.NewReader(rawFrame(payload)), event.DefaultEnergyGrid).Decode()
	require.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNegativeWeightRejected(t *testing.T) {
	payload := appendRecord(nil, newRecord(t, 1))
	var w []byte
	w = protowire.AppendTag(w, weightName, protowire.BytesType)
	w = protowire.AppendString(w, "neg")
	w = appendFloat(w, weightValue, -1)
	payload = appendMessage(payload, fieldWeight, w)

	_, err := NewDecoder(bytes.NewReader(rawFrame(payload)), event.DefaultEnergyGrid).Decode()
	assert.ErrorIs(t, err, ErrFormat)
}

func TestNonUnitDirection(t *testing.T) {
	r := newRecord(t, 1)
	mc := r.MC()
	mc.Direction = event.Vec3{X: 1, Y: 1}
	bad := event.New(1, mc, r.Reco(), r.Observables())

	var buf bytes.Buffer
	assert.Error(t, NewEncoder(&buf).Encode(bad))

	_, err := NewDecoder(bytes.NewReader(rawFrame(appendRecord(nil, bad))), event.DefaultEnergyGrid).Decode()
	assert.ErrorIs(t, err, ErrFormat)
}

func TestProfileGridMismatch(t *testing.T) {
	r := newRecord(t, 1)
	p, err := event.NewProfile(event.DefaultEnergyGrid)
	require.NoError(t, err)
	require.NoError(t, p.Set(10, 1))
	r.SetProfile(p)
	data := encodeAll(t, nil, r)

	other := event.EnergyGrid{BinWidth: 0.1, LogEMin: 5, Bins: 70}
	_, err = NewDecoder(bytes.NewReader(data), other).Decode()
	require.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "grid")
}

func TestCompressionShrinksFrames(t *testing.T) {
	r := newRecord(t, 1)
	p, err := event.NewProfile(event.DefaultEnergyGrid)
	require.NoError(t, err)
	for i := range p.Len() {
		require.NoError(t, p.Set(i, 0.5))
	}
	r.SetProfile(p)

	plain := encodeAll(t, nil, r)
	packed := encodeAll(t, []EncoderOption{WithCompression()}, r)
	assert.Less(t, len(packed), len(plain))
	assert.Equal(t, byte(flagLZ4), packed[5])

	got := decodeAll(t, packed)
	require.Len(t, got, 1)
	assert.True(t, r.Equal(got[0]))
}

func TestRecordsIterator(t *testing.T) {
	data := encodeAll(t, nil, newRecord(t, 1), newRecord(t, 2), newRecord(t, 3))
	dec := NewDecoder(bytes.NewReader(data), event.DefaultEnergyGrid)

	var ids []int64
	for r, err := range dec.Records() {
		require.NoError(t, err)
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, 3, dec.Count())
}
