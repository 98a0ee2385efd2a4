package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/decibelcooper/uhepipe/internal/event"
)

// record fields
const (
	fieldRunID   protowire.Number = 1
	fieldMC      protowire.Number = 2
	fieldReco    protowire.Number = 3
	fieldObs     protowire.Number = 4
	fieldProfile protowire.Number = 5
	fieldWeight  protowire.Number = 6
	fieldPrimary protowire.Number = 7
	fieldView    protowire.Number = 8
)

// kinematics fields
const (
	kinSpecies         protowire.Number = 1
	kinLogEnergy       protowire.Number = 2
	kinLifetime        protowire.Number = 3
	kinDistance        protowire.Number = 4
	kinDirection       protowire.Number = 5
	kinOrigin          protowire.Number = 6
	kinGlobalDirection protowire.Number = 7
	kinGlobalOrigin    protowire.Number = 8
)

// observables fields
const (
	obsNpe       protowire.Number = 1
	obsNpeATWD   protowire.Number = 2
	obsNpeFADC   protowire.Number = 3
	obsNDOMs     protowire.Number = 4
	obsNDOMsFADC protowire.Number = 5
	obsFGQuality protowire.Number = 6
)

// profile fields
const (
	profBinWidth protowire.Number = 1
	profLogEMin  protowire.Number = 2
	profBins     protowire.Number = 3
	profFirst    protowire.Number = 4
	profValues   protowire.Number = 5
)

// weight entry fields
const (
	weightName  protowire.Number = 1
	weightValue protowire.Number = 2
)

func appendRecord(b []byte, r *event.Record) []byte {
	b = protowire.AppendTag(b, fieldRunID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.RunID))
	b = appendMessage(b, fieldMC, appendKinematics(nil, r.MC()))
	b = appendMessage(b, fieldReco, appendKinematics(nil, r.Reco()))
	b = appendMessage(b, fieldObs, appendObservables(nil, r.Observables()))
	if p := r.Profile(); p != nil {
		b = appendMessage(b, fieldProfile, appendProfile(nil, p))
	}
	for model, v := range r.Weights().All() {
		var w []byte
		w = protowire.AppendTag(w, weightName, protowire.BytesType)
		w = protowire.AppendString(w, model)
		w = appendFloat(w, weightValue, v)
		b = appendMessage(b, fieldWeight, w)
	}
	b = appendFloat(b, fieldPrimary, r.PrimaryWeight())
	b = protowire.AppendTag(b, fieldView, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.View()))
	return b
}

func appendKinematics(b []byte, k event.Kinematics) []byte {
	b = protowire.AppendTag(b, kinSpecies, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Species))
	b = appendFloat(b, kinLogEnergy, k.LogEnergy)
	b = appendFloat(b, kinLifetime, k.Lifetime)
	b = appendFloat(b, kinDistance, k.Distance)
	b = appendVec(b, kinDirection, k.Direction)
	b = appendVec(b, kinOrigin, k.Origin)
	b = appendVec(b, kinGlobalDirection, k.GlobalDirection)
	b = appendVec(b, kinGlobalOrigin, k.GlobalOrigin)
	return b
}

func appendObservables(b []byte, o event.Observables) []byte {
	b = appendFloat(b, obsNpe, o.Npe)
	b = appendFloat(b, obsNpeATWD, o.NpeATWD)
	b = appendFloat(b, obsNpeFADC, o.NpeFADC)
	b = protowire.AppendTag(b, obsNDOMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.NDOMs))
	b = protowire.AppendTag(b, obsNDOMsFADC, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.NDOMsFADC))
	b = appendFloat(b, obsFGQuality, o.FirstGuessQuality)
	return b
}

// appendProfile stores only the span between the first and last non-zero bin.
func appendProfile(b []byte, p *event.Profile) []byte {
	g := p.Grid()
	b = appendFloat(b, profBinWidth, g.BinWidth)
	b = appendFloat(b, profLogEMin, g.LogEMin)
	b = protowire.AppendTag(b, profBins, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Bins))

	vals := p.Values()
	first, last := 0, len(vals)
	for first < last && vals[first] == 0 {
		first++
	}
	for last > first && vals[last-1] == 0 {
		last--
	}
	b = protowire.AppendTag(b, profFirst, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(first))

	packed := make([]byte, 0, 8*(last-first))
	for _, v := range vals[first:last] {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, profValues, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVec(b []byte, num protowire.Number, v event.Vec3) []byte {
	var packed [24]byte
	binary.LittleEndian.PutUint64(packed[0:], math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(packed[8:], math.Float64bits(v.Y))
	binary.LittleEndian.PutUint64(packed[16:], math.Float64bits(v.Z))
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed[:])
}

// fieldFunc handles one field of a message and returns the number of value
// bytes it consumed. Returning 0 skips the field as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, f fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := f(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func wireType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("wire type %d, want %d", got, want)
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if err := wireType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeInt(typ protowire.Type, b []byte, dst *int) (int, error) {
	var v uint64
	n, err := consumeVarint(typ, b, &v)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("integer %d out of range", v)
	}
	*dst = int(v)
	return n, nil
}

func consumeFloat(typ protowire.Type, b []byte, dst *float64) (int, error) {
	if err := wireType(typ, protowire.Fixed64Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = math.Float64frombits(v)
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if err := wireType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeVec(typ protowire.Type, b []byte, dst *event.Vec3) (int, error) {
	var raw []byte
	n, err := consumeBytes(typ, b, &raw)
	if err != nil {
		return 0, err
	}
	if len(raw) != 24 {
		return 0, fmt.Errorf("vector of %d bytes", len(raw))
	}
	*dst = event.Vec3{
		X: math.Float64frombits(binary.LittleEndian.Uint64(raw[0:])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(raw[8:])),
		Z: math.Float64frombits(binary.LittleEndian.Uint64(raw[16:])),
	}
	return n, nil
}

func unmarshalRecord(b []byte, grid event.EnergyGrid) (*event.Record, error) {
	var (
		runID    int64
		mc, reco event.Kinematics
		obs      event.Observables
		profile  *event.Profile
		weights  []event.Weight
		primary  float64
		view     uint64
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			msg []byte
			n   int
			err error
		)
		switch num {
		case fieldRunID:
			var v uint64
			n, err = consumeVarint(typ, b, &v)
			runID = protowire.DecodeZigZag(v)
			return n, err
		case fieldPrimary:
			return consumeFloat(typ, b, &primary)
		case fieldView:
			return consumeVarint(typ, b, &view)
		case fieldMC, fieldReco, fieldObs, fieldProfile, fieldWeight:
			if n, err = consumeBytes(typ, b, &msg); err != nil {
				return 0, err
			}
		default:
			return 0, nil
		}
		switch num {
		case fieldMC:
			mc, err = unmarshalKinematics(msg)
		case fieldReco:
			reco, err = unmarshalKinematics(msg)
		case fieldObs:
			obs, err = unmarshalObservables(msg)
		case fieldProfile:
			profile, err = unmarshalProfile(msg, grid)
		case fieldWeight:
			var w event.Weight
			w, err = unmarshalWeight(msg)
			weights = append(weights, w)
		}
		return n, err
	})
	if err != nil {
		return nil, err
	}

	r := event.New(runID, mc, reco, obs)
	switch event.View(view) {
	case event.Reco, event.MCTruth:
		r.SetView(event.View(view))
	default:
		return nil, fmt.Errorf("unknown view %d", view)
	}
	if err := r.SetPrimaryWeight(primary); err != nil {
		return nil, err
	}
	for _, w := range weights {
		if r.Weights().Has(w.Model) {
			return nil, fmt.Errorf("duplicate weight %q", w.Model)
		}
		if err := r.Weights().Fill(w.Model, w.Value); err != nil {
			return nil, err
		}
	}
	r.SetProfile(profile)
	if err := validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func unmarshalKinematics(b []byte) (event.Kinematics, error) {
	var k event.Kinematics
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case kinSpecies:
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			if err == nil && v >= 256 {
				err = fmt.Errorf("species %d", v)
			}
			k.Species = event.Species(v)
			return n, err
		case kinLogEnergy:
			return consumeFloat(typ, b, &k.LogEnergy)
		case kinLifetime:
			return consumeFloat(typ, b, &k.Lifetime)
		case kinDistance:
			return consumeFloat(typ, b, &k.Distance)
		case kinDirection:
			return consumeVec(typ, b, &k.Direction)
		case kinOrigin:
			return consumeVec(typ, b, &k.Origin)
		case kinGlobalDirection:
			return consumeVec(typ, b, &k.GlobalDirection)
		case kinGlobalOrigin:
			return consumeVec(typ, b, &k.GlobalOrigin)
		}
		return 0, nil
	})
	return k, err
}

func unmarshalObservables(b []byte) (event.Observables, error) {
	var o event.Observables
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case obsNpe:
			return consumeFloat(typ, b, &o.Npe)
		case obsNpeATWD:
			return consumeFloat(typ, b, &o.NpeATWD)
		case obsNpeFADC:
			return consumeFloat(typ, b, &o.NpeFADC)
		case obsNDOMs:
			return consumeInt(typ, b, &o.NDOMs)
		case obsNDOMsFADC:
			return consumeInt(typ, b, &o.NDOMsFADC)
		case obsFGQuality:
			return consumeFloat(typ, b, &o.FirstGuessQuality)
		}
		return 0, nil
	})
	return o, err
}

func unmarshalProfile(b []byte, grid event.EnergyGrid) (*event.Profile, error) {
	var (
		g      event.EnergyGrid
		first  int
		packed []byte
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case profBinWidth:
			return consumeFloat(typ, b, &g.BinWidth)
		case profLogEMin:
			return consumeFloat(typ, b, &g.LogEMin)
		case profBins:
			return consumeInt(typ, b, &g.Bins)
		case profFirst:
			return consumeInt(typ, b, &first)
		case profValues:
			return consumeBytes(typ, b, &packed)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if g != grid {
		return nil, fmt.Errorf("profile grid %+v does not match %+v", g, grid)
	}
	if len(packed)%8 != 0 {
		return nil, fmt.Errorf("profile values of %d bytes", len(packed))
	}
	if first+len(packed)/8 > grid.Bins {
		return nil, fmt.Errorf("profile values [%d, %d) outside [0, %d)", first, first+len(packed)/8, grid.Bins)
	}
	p, err := event.NewProfile(grid)
	if err != nil {
		return nil, err
	}
	for i := 0; len(packed) > 0; i++ {
		v, n := protowire.ConsumeFixed64(packed)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		packed = packed[n:]
		if err := p.Set(first+i, math.Float64frombits(v)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func unmarshalWeight(b []byte) (event.Weight, error) {
	var (
		w    event.Weight
		name []byte
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case weightName:
			return consumeBytes(typ, b, &name)
		case weightValue:
			return consumeFloat(typ, b, &w.Value)
		}
		return 0, nil
	})
	w.Model = string(name)
	if err == nil && w.Model == "" {
		err = errors.New("weight without a name")
	}
	return w, err
}

// validate checks the invariants a record must satisfy on the wire.
func validate(r *event.Record) error {
	for _, v := range []event.View{event.MCTruth, event.Reco} {
		k := r.In(v)
		if !k.Species.Valid() {
			return fmt.Errorf("%s kinematics: invalid species %d", v, uint8(k.Species))
		}
		for _, d := range []event.Vec3{k.Direction, k.GlobalDirection} {
			if !d.IsZero() && !d.IsUnit() {
				return fmt.Errorf("%s kinematics: direction %+v is not a unit vector", v, d)
			}
		}
	}
	o := r.Observables()
	for _, npe := range []float64{o.Npe, o.NpeATWD, o.NpeFADC} {
		if math.IsNaN(npe) || npe < 0 {
			return fmt.Errorf("invalid npe %v", npe)
		}
	}
	if o.NDOMs < 0 || o.NDOMsFADC < 0 || o.NDOMs > math.MaxInt32 || o.NDOMsFADC > math.MaxInt32 {
		return fmt.Errorf("NDOMs %d/%d out of range", o.NDOMs, o.NDOMsFADC)
	}
	return nil
}
