package uhepipe

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/histogram"
)

func filled(t *testing.T, axes ...histogram.Axis) histogram.Snapshot {
	t.Helper()
	agg, err := histogram.New("h", axes)
	require.NoError(t, err)
	for i := range 20 {
		k := event.NewKinematics(event.Muon, 5.3+0.25*float64(i))
		cz := -0.9 + 0.09*float64(i)
		k.Direction = event.Vec3{X: math.Sqrt(1 - cz*cz), Z: -cz}
		agg.Accumulate(event.New(1, k, k, event.Observables{Npe: 1e5, NDOMs: 90}))
	}
	return agg.Snapshot()
}

func TestSavePlots(t *testing.T) {
	dir := t.TempDir()
	e := histogram.Axis{Variable: histogram.LogEnergy, BinWidth: 0.5, Min: 5, Max: 11}
	c := histogram.Axis{Variable: histogram.CosZenith, BinWidth: 0.25, Min: -1, Max: 1}

	one := filled(t, e)
	require.NoError(t, SaveH1D(filepath.Join(dir, "e.png"), "energy", one, one))
	require.NoError(t, SaveHeatMap(filepath.Join(dir, "ec.png"), "energy vs zenith", filled(t, e, c)))

	for _, name := range []string{"e.png", "ec.png"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, fi.Size())
	}

	assert.Error(t, SaveHeatMap(filepath.Join(dir, "bad.png"), "", one))
	_, err := PlotH1D("")
	assert.Error(t, err)
}
