package criteria

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
)

type recordSpec struct {
	logNpe    float64
	nDOMs     int
	cosZenith float64
	origin    event.Vec3
	atwd      float64
	fadc      float64
	fgQ       float64
}

func record(s recordSpec) *event.Record {
	dir := event.Vec3{X: math.Sqrt(1 - s.cosZenith*s.cosZenith), Z: -s.cosZenith}
	reco := event.NewKinematics(event.Muon, 7)
	reco.Direction = dir
	reco.Origin = s.origin
	mc := reco
	mc.Direction = event.Vec3{Z: 1}
	mc.Origin = event.Vec3{Z: 9e6}
	return event.New(1, mc, reco, event.Observables{
		Npe:               math.Pow(10, s.logNpe),
		NpeATWD:           s.atwd,
		NpeFADC:           s.fadc,
		NDOMs:             s.nDOMs,
		FirstGuessQuality: s.fgQ,
	})
}

func TestSelectionScenario(t *testing.T) {
	c, err := New(WithMinLogNpe(4.0), WithMinNDOMs(80))
	require.NoError(t, err)

	recs := []*event.Record{
		record(recordSpec{logNpe: 3.5, nDOMs: 60}),
		record(recordSpec{logNpe: 4.0, nDOMs: 80}),
		record(recordSpec{logNpe: 4.6, nDOMs: 90}),
	}
	var passed []bool
	for _, r := range recs {
		passed = append(passed, c.Pass(r))
	}
	assert.Equal(t, []bool{false, true, true}, passed)
}

func TestNoRulesPassesEverything(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.True(t, c.Pass(record(recordSpec{logNpe: -3})))

	var nilCriteria *Criteria
	assert.True(t, nilCriteria.Pass(record(recordSpec{})))
}

func TestMinLogNpeMonotonic(t *testing.T) {
	var recs []*event.Record
	for x := 2.0; x <= 7.0; x += 0.25 {
		recs = append(recs, record(recordSpec{logNpe: x, nDOMs: 100}))
	}

	prev := len(recs) + 1
	for th := 2.0; th <= 7.5; th += 0.5 {
		c, err := New(WithMinLogNpe(th), WithMinNDOMs(50))
		require.NoError(t, err)
		n := 0
		for _, r := range recs {
			if c.Pass(r) {
				n++
			}
		}
		assert.LessOrEqual(t, n, prev, "threshold %v", th)
		prev = n
	}
	assert.Equal(t, 0, prev)
}

func TestCosZenithWindow(t *testing.T) {
	c, err := New(WithCosZenithWindow(0.2, 1.0, 5.5))
	require.NoError(t, err)

	assert.False(t, c.Pass(record(recordSpec{logNpe: 5.0, cosZenith: 0.5})))
	assert.True(t, c.Pass(record(recordSpec{logNpe: 5.6, cosZenith: 0.5})))
	assert.True(t, c.Pass(record(recordSpec{logNpe: 5.0, cosZenith: -0.5})), "floor must not apply outside the window")
	assert.False(t, c.Pass(record(recordSpec{logNpe: 5.0, cosZenith: 0.2})), "window is closed")
}

func TestSimpleCuts(t *testing.T) {
	below, err := New(WithSimpleCosZenithCut(0.1, true))
	require.NoError(t, err)
	assert.True(t, below.Pass(record(recordSpec{cosZenith: -0.4})))
	assert.False(t, below.Pass(record(recordSpec{cosZenith: 0.4})))

	above, err := New(WithSimpleCosZenithCut(0.1, false))
	require.NoError(t, err)
	assert.False(t, above.Pass(record(recordSpec{cosZenith: -0.4})))
	assert.True(t, above.Pass(record(recordSpec{cosZenith: 0.4})))

	atLeast, err := New(WithSimpleNpeCut(5, true))
	require.NoError(t, err)
	assert.True(t, atLeast.Pass(record(recordSpec{logNpe: 5})))
	assert.False(t, atLeast.Pass(record(recordSpec{logNpe: 4.9})))

	under, err := New(WithSimpleNpeCut(5, false))
	require.NoError(t, err)
	assert.False(t, under.Pass(record(recordSpec{logNpe: 5})))
	assert.True(t, under.Pass(record(recordSpec{logNpe: 4.9})))
}

func TestMinimumBound(t *testing.T) {
	// edge through (logNpe, cosZ) = (6, -1) and (4, 1)
	c, err := New(WithMinimumBound(4, 2, -1, 2))
	require.NoError(t, err)

	assert.True(t, c.Pass(record(recordSpec{logNpe: 6.5, cosZenith: -0.9})))
	assert.False(t, c.Pass(record(recordSpec{logNpe: 4.5, cosZenith: -0.9})))
	assert.True(t, c.Pass(record(recordSpec{logNpe: 4.5, cosZenith: 0.9})))
	assert.False(t, c.Pass(record(recordSpec{logNpe: 3.5, cosZenith: 0.9})))
}

func TestMaxDistanceReadsActiveView(t *testing.T) {
	c, err := New(WithMaxDistance(500, event.Vec3{}))
	require.NoError(t, err)

	r := record(recordSpec{origin: event.Vec3{X: 300, Y: 300}})
	assert.True(t, c.Pass(r))

	r.SetView(event.MCTruth)
	assert.False(t, c.Pass(r))
}

func TestCOBZRangePinsReco(t *testing.T) {
	c, err := New(WithCOBZRange(DefaultCOBZ.Min, DefaultCOBZ.Max))
	require.NoError(t, err)

	r := record(recordSpec{origin: event.Vec3{Z: 1e4}})
	r.SetView(event.MCTruth)
	assert.True(t, c.Pass(r))
	assert.Equal(t, event.MCTruth, r.View(), "evaluation must not switch the view")

	outside := record(recordSpec{origin: event.Vec3{Z: 5e4}})
	assert.False(t, c.Pass(outside))
}

func TestNpeScaling(t *testing.T) {
	c, err := New(WithMinLogNpe(5), WithNpeScaling(10))
	require.NoError(t, err)
	assert.True(t, c.Pass(record(recordSpec{logNpe: 4.5})))

	c, err = New(WithNpeScaling(0.1), WithMinLogNpe(5))
	require.NoError(t, err)
	assert.False(t, c.Pass(record(recordSpec{logNpe: 5.5})))
}

func TestFirstGuessQuality(t *testing.T) {
	c, err := New(WithMinFirstGuessQuality(0.2))
	require.NoError(t, err)
	assert.True(t, c.Pass(record(recordSpec{fgQ: 0.2})))
	assert.False(t, c.Pass(record(recordSpec{fgQ: 0.1})))
}

func TestCheckNamesRejectingRule(t *testing.T) {
	c, err := New(WithMinLogNpe(4), WithMinNDOMs(80))
	require.NoError(t, err)

	ok, rule := c.Check(record(recordSpec{logNpe: 5, nDOMs: 10}))
	assert.False(t, ok)
	assert.Equal(t, "min_ndoms", rule)
	assert.Equal(t, []string{"min_log_npe", "min_ndoms"}, c.Rules())
}

func TestRepeatedOptionKeepsLast(t *testing.T) {
	c, err := New(WithMinLogNpe(6), WithMinLogNpe(3))
	require.NoError(t, err)
	assert.True(t, c.Pass(record(recordSpec{logNpe: 4})))
	assert.Len(t, c.Rules(), 1)
}

func TestSuperCut(t *testing.T) {
	c, err := New(WithSuperCut(DefaultSuperCut()))
	require.NoError(t, err)

	tests := []struct {
		name string
		spec recordSpec
		want bool
	}{
		{"atwd inside above", recordSpec{logNpe: 6.0, nDOMs: 100, cosZenith: 0.3, atwd: 2, fadc: 1}, true},
		{"atwd inside below", recordSpec{logNpe: 5.8, nDOMs: 100, cosZenith: 0.3, atwd: 2, fadc: 1}, false},
		{"too few doms", recordSpec{logNpe: 8.0, nDOMs: 79, cosZenith: 0.3, atwd: 2, fadc: 1}, false},
		{"fadc outside above", recordSpec{logNpe: 5.5, nDOMs: 100, cosZenith: 0.5, atwd: 1, fadc: 2, origin: event.Vec3{Z: 1e5}}, true},
		{"fadc outside below", recordSpec{logNpe: 5.4, nDOMs: 100, cosZenith: 0.5, atwd: 1, fadc: 2, origin: event.Vec3{Z: 1e5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Pass(record(tt.spec)))
		})
	}
}

func TestSuperCutCategory(t *testing.T) {
	sc := DefaultSuperCut()
	cat := func(s recordSpec) Category {
		return sc.category(&sample{rec: record(s)})
	}
	assert.Equal(t, ATWDInside, cat(recordSpec{atwd: 1, fadc: 1}))
	assert.Equal(t, ATWDOutside, cat(recordSpec{atwd: 1, fadc: 1, origin: event.Vec3{Z: -5e4}}))
	assert.Equal(t, FADCInside, cat(recordSpec{atwd: 1, fadc: 3, origin: event.Vec3{Z: 4.5e6}}))
	assert.Equal(t, FADCOutside, cat(recordSpec{atwd: 1, fadc: 3, origin: event.Vec3{Z: 1e6}}))
}

func TestConfigErrors(t *testing.T) {
	bad := DefaultSuperCut()
	bad.Boundaries[FADCInside] = bad.Boundaries[FADCInside][:1]

	tests := []struct {
		name string
		opt  Option
	}{
		{"nan threshold", WithMinLogNpe(math.NaN())},
		{"negative doms", WithMinNDOMs(-1)},
		{"empty window", WithCosZenithWindow(0.5, 0.5, 4)},
		{"zero span", WithMinimumBound(4, 0, -1, 2)},
		{"negative distance", WithMaxDistance(-1, event.Vec3{})},
		{"inverted cobz", WithCOBZRange(10, -10)},
		{"zero scale", WithNpeScaling(0)},
		{"short boundary", WithSuperCut(bad)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opt)
			assert.Nil(t, c)
			require.ErrorIs(t, err, errs.ErrConfig)
			var ce *errs.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "criteria", ce.Component)
		})
	}
}
