package uhepipe

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

// RunRangesFlag collects run ranges from repeated or comma-separated flag
// values. The first Set replaces the defaults it was created with.
type RunRangesFlag struct {
	Ranges  []pipeline.RunRange
	beenSet bool
}

func (f *RunRangesFlag) Set(valueStr string) error {
	var parsed []pipeline.RunRange
	for _, s := range strings.Split(valueStr, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := pipeline.ParseRunRange(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, r)
	}

	if !f.beenSet {
		f.beenSet = true
		f.Ranges = nil
	}
	f.Ranges = append(f.Ranges, parsed...)
	return nil
}

func (f *RunRangesFlag) String() string {
	s := make([]string, len(f.Ranges))
	for i, r := range f.Ranges {
		s[i] = r.String()
	}
	return strings.Join(s, ",")
}

func (f *RunRangesFlag) Type() string { return "runs" }

// Changed reports whether the flag was given on the command line.
func (f *RunRangesFlag) Changed() bool { return f.beenSet }

// ViewFlag selects a record view; unset leaves records in their stored view.
type ViewFlag struct {
	View  event.View
	IsSet bool
}

func (f *ViewFlag) Set(valueStr string) error {
	v, err := event.ParseView(valueStr)
	if err != nil {
		return err
	}
	f.View, f.IsSet = v, true
	return nil
}

func (f *ViewFlag) String() string {
	if !f.IsSet {
		return ""
	}
	return f.View.String()
}

func (f *ViewFlag) Type() string { return "view" }

var (
	_ pflag.Value = (*RunRangesFlag)(nil)
	_ pflag.Value = (*ViewFlag)(nil)
)
