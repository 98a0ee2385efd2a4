package uhepipe

import (
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/plot"

	"github.com/decibelcooper/uhepipe/internal/histogram"
)

// PreciseTicks places about NSuggestedTicks labelled ticks on round values
// and fills the gaps with unlabelled minor ticks.
type PreciseTicks struct {
	NSuggestedTicks int
}

func (t PreciseTicks) Ticks(min, max float64) []plot.Tick {
	n := t.NSuggestedTicks
	if n < 2 {
		n = 4
	}
	if !(max > min) {
		return []plot.Tick{{Value: min, Label: formatTick(min)}}
	}

	span := max - min
	unit := math.Pow10(int(math.Floor(math.Log10(span))))
	for span/unit < float64(n-1) {
		unit /= 10
	}

	mult := int(span / unit / float64(n-1))
	switch mult {
	case 7:
		mult = 6
	case 9:
		mult = 8
	}
	major := float64(mult) * unit
	minor := major / 2
	switch mult {
	case 3, 6:
		minor = major / 3
	case 5:
		minor = major / 5
	}

	var ticks []plot.Tick
	prec := -int(math.Floor(math.Log10(major))) + 1
	for _, v := range steps(min, max, major, prec) {
		ticks = append(ticks, plot.Tick{Value: v, Label: formatTick(v)})
	}
	for _, v := range steps(min, max, minor, prec+1) {
		if !slices.ContainsFunc(ticks, func(t plot.Tick) bool { return t.Value == v }) {
			ticks = append(ticks, plot.Tick{Value: v})
		}
	}
	return ticks
}

// steps lists the multiples of delta in [min, max], rounded to prec digits.
func steps(min, max, delta float64, prec int) []float64 {
	var out []float64
	tol := delta * 1e-9
	for i := math.Ceil(min/delta - 1e-9); ; i++ {
		v := i * delta
		if v > max+tol {
			return out
		}
		out = append(out, round(v, prec))
	}
}

// TicksFor picks a tick marker suited to a histogram variable.
func TicksFor(v histogram.Variable) plot.Ticker {
	switch v {
	case histogram.NDOMs:
		return integerTicks{}
	default:
		return PreciseTicks{NSuggestedTicks: 5}
	}
}

// integerTicks never labels a fractional value.
type integerTicks struct{}

func (integerTicks) Ticks(min, max float64) []plot.Tick {
	ticks := PreciseTicks{NSuggestedTicks: 5}.Ticks(min, max)
	out := ticks[:0]
	for _, t := range ticks {
		if t.Value != math.Trunc(t.Value) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func round(x float64, prec int) float64 {
	if x == 0 || math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	pow := math.Pow10(prec)
	v := math.Round(x * pow)
	if math.IsInf(v, 0) {
		return x
	}
	if v == 0 {
		return 0
	}
	return v / pow
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
