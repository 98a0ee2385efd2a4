package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func report(source string, state pipeline.State, err error) pipeline.Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return pipeline.Report{
		ID:                uuid.New(),
		Source:            source,
		Started:           start,
		Finished:          start.Add(1500 * time.Millisecond),
		Decoded:           12,
		BadRunExcluded:    2,
		SelectionRejected: 4,
		Aggregated:        6,
		OutOfRange:        1,
		MissingWeight:     3,
		Written:           6,
		State:             state,
		Incomplete:        err != nil,
		Err:               err,
	}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	ok := report("a.uhe", pipeline.Closed, nil)
	bad := report("b.uhe", pipeline.Failed, errors.New("decode: truncated"))
	bad.Started = bad.Started.Add(time.Minute)
	require.NoError(t, l.Record(ctx, "merge", ok))
	require.NoError(t, l.Record(ctx, "merge", bad))

	all, err := l.Runs(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Entry{
		ID:                ok.ID,
		Tool:              "merge",
		Source:            "a.uhe",
		Started:           ok.Started,
		Finished:          ok.Finished,
		Decoded:           12,
		BadRunExcluded:    2,
		SelectionRejected: 4,
		Aggregated:        6,
		OutOfRange:        1,
		MissingWeight:     3,
		Written:           6,
		State:             "closed",
	}, all[0])

	incomplete, err := l.Runs(ctx, true)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, bad.ID, incomplete[0].ID)
	assert.Equal(t, "failed", incomplete[0].State)
	assert.Equal(t, "decode: truncated", incomplete[0].Error)
	assert.True(t, incomplete[0].Incomplete)
}

func TestRecordDuplicate(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	rep := report("a.uhe", pipeline.Closed, nil)
	require.NoError(t, l.Record(ctx, "histogram", rep))
	err := l.Record(ctx, "histogram", rep)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestOpenFileReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, "dump", report("x.uhe", pipeline.Closed, nil)))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(ctx, false)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = Open(" ")
	assert.Error(t, err)
}
