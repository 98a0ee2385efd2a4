package uhepipe

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

func TestRunRangesFlag(t *testing.T) {
	runs := RunRangesFlag{Ranges: pipeline.DefaultBadRuns}
	var view ViewFlag
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&runs, "exclude-runs", "")
	fs.Var(&view, "view", "")

	assert.Equal(t, "89658-89712", runs.String())
	require.NoError(t, fs.Parse([]string{"--exclude-runs", "10-20,25", "--exclude-runs=30", "--view", "mc"}))
	assert.True(t, runs.Changed())
	assert.Equal(t, []pipeline.RunRange{{First: 10, Last: 20}, {First: 25, Last: 25}, {First: 30, Last: 30}}, runs.Ranges)
	assert.True(t, view.IsSet)
	assert.Equal(t, event.MCTruth, view.View)

	assert.Error(t, runs.Set("7-1"))
	assert.Error(t, view.Set("sideways"))
}
