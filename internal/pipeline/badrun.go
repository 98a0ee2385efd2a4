package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/decibelcooper/uhepipe/internal/errs"
)

// RunRange is an inclusive range of run numbers.
type RunRange struct {
	First int64 `yaml:"first"`
	Last  int64 `yaml:"last"`
}

func (r RunRange) Contains(id int64) bool { return r.First <= id && id <= r.Last }

func (r RunRange) String() string {
	if r.First == r.Last {
		return strconv.FormatInt(r.First, 10)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// ParseRunRange accepts "N" or "N-M". Run numbers are non-negative, so a
// leading sign is rejected rather than read as a range separator.
func ParseRunRange(s string) (RunRange, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return RunRange{}, fmt.Errorf("run range %q: run numbers are non-negative and unsigned", s)
	}
	lo, hi, isRange := strings.Cut(s, "-")
	first, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return RunRange{}, fmt.Errorf("run range %q: %w", s, err)
	}
	last := first
	if isRange {
		if last, err = strconv.ParseInt(strings.TrimSpace(hi), 10, 64); err != nil {
			return RunRange{}, fmt.Errorf("run range %q: %w", s, err)
		}
	}
	if first < 0 || last < 0 || strings.ContainsAny(hi, "+-") {
		return RunRange{}, fmt.Errorf("run range %q: run numbers are non-negative and unsigned", s)
	}
	if first > last {
		return RunRange{}, fmt.Errorf("run range %q: first run after last", s)
	}
	return RunRange{First: first, Last: last}, nil
}

// DefaultBadRuns are the runs of the 2006 data sample excluded for detector
// quality.
var DefaultBadRuns = []RunRange{{First: 89658, Last: 89712}}

// BadRunFilter drops records by run number before selection. A record is
// excluded when its run falls in any Exclude range or outside Valid.
type BadRunFilter struct {
	Exclude []RunRange
	Valid   *RunRange
}

func (f BadRunFilter) Validate() error {
	for _, r := range f.Exclude {
		if r.First > r.Last {
			return errs.Config("bad runs", "exclude", "range %d-%d is inverted", r.First, r.Last)
		}
	}
	if f.Valid != nil && f.Valid.First > f.Valid.Last {
		return errs.Config("bad runs", "valid", "range %d-%d is inverted", f.Valid.First, f.Valid.Last)
	}
	return nil
}

func (f BadRunFilter) Excluded(id int64) bool {
	if f.Valid != nil && !f.Valid.Contains(id) {
		return true
	}
	for _, r := range f.Exclude {
		if r.Contains(id) {
			return true
		}
	}
	return false
}
