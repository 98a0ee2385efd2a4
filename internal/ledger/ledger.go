// Package ledger keeps a SQLite table of every pipeline run so that
// incomplete inputs and record losses can be audited after the fact.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

// ErrDuplicate is returned when a report with the same id is recorded twice.
var ErrDuplicate = errors.New("run already recorded")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	tool               TEXT NOT NULL,
	source             TEXT NOT NULL,
	started_at         INTEGER NOT NULL,
	finished_at        INTEGER NOT NULL,
	decoded            INTEGER NOT NULL,
	bad_run_excluded   INTEGER NOT NULL,
	selection_rejected INTEGER NOT NULL,
	aggregated         INTEGER NOT NULL,
	out_of_range       INTEGER NOT NULL DEFAULT 0,
	missing_weight     INTEGER NOT NULL DEFAULT 0,
	written            INTEGER NOT NULL,
	state              TEXT NOT NULL,
	incomplete         INTEGER NOT NULL,
	error              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	dsn := ":memory:"
	if path != dsn {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// one connection, so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores rep under the name of the tool that produced it.
func (l *Ledger) Record(ctx context.Context, tool string, rep pipeline.Report) error {
	var errText string
	if rep.Err != nil {
		errText = rep.Err.Error()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO runs (id, tool, source, started_at, finished_at, decoded, bad_run_excluded,
	selection_rejected, aggregated, out_of_range, missing_weight, written, state, incomplete, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID.String(), tool, rep.Source,
		toMillis(rep.Started), toMillis(rep.Finished),
		rep.Decoded, rep.BadRunExcluded, rep.SelectionRejected, rep.Aggregated,
		rep.OutOfRange, rep.MissingWeight, rep.Written,
		rep.State.String(), rep.Incomplete, errText,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("record run %s: %w", rep.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("record run %s: %w", rep.ID, err)
	}
	return nil
}

// Entry is one stored run.
type Entry struct {
	ID                uuid.UUID
	Tool              string
	Source            string
	Started           time.Time
	Finished          time.Time
	Decoded           int
	BadRunExcluded    int
	SelectionRejected int
	Aggregated        int
	OutOfRange        int
	MissingWeight     int
	Written           int
	State             string
	Incomplete        bool
	Error             string
}

// Runs lists the stored runs, oldest first. Only incomplete runs are listed
// when incompleteOnly is set.
func (l *Ledger) Runs(ctx context.Context, incompleteOnly bool) ([]Entry, error) {
	q := `SELECT id, tool, source, started_at, finished_at, decoded, bad_run_excluded,
	selection_rejected, aggregated, out_of_range, missing_weight, written, state, incomplete,
	error FROM runs`
	if incompleteOnly {
		q += ` WHERE incomplete = 1`
	}
	q += ` ORDER BY started_at, rowid`

	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			id                string
			started, finished int64
		)
		if err := rows.Scan(&id, &e.Tool, &e.Source, &started, &finished,
			&e.Decoded, &e.BadRunExcluded, &e.SelectionRejected, &e.Aggregated,
			&e.OutOfRange, &e.MissingWeight, &e.Written,
			&e.State, &e.Incomplete, &e.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Started, e.Finished = fromMillis(started), fromMillis(finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
