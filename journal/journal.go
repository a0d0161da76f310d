// CLAUDE:SUMMARY SQLite journal of outreach runs and per-profile state transitions; implements outreach.Reporter.
// Package journal records every outreach run and each profile's state
// transitions in SQLite so past runs can be inspected after the fact.
//
// The journal is an observer: write failures are logged and never reach
// the orchestrator.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/reachout/dbopen"
	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/idgen"
	"github.com/hazyhaar/reachout/outreach"
)

// Event is one recorded row of run_events.
type Event struct {
	EventID   string
	RunID     string
	Ref       exclusion.ProfileRef
	From      string
	To        string
	Tag       string
	Error     string
	CreatedAt time.Time
}

// Run is one recorded row of runs.
type Run struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Summary    outreach.Summary
	Fatal      string
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newEventID = gen }
}

// WithRunIDGenerator sets the generator for run IDs.
func WithRunIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newRunID = gen }
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Journal persists runs and transitions.
type Journal struct {
	db         *sql.DB
	newRunID   idgen.Generator
	newEventID idgen.Generator
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	runID string
}

// Init creates the journal tables on db.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("journal: init schema: %w", err)
	}
	return nil
}

// New creates a Journal on db. Call Init first.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:         db,
		newRunID:   idgen.Prefixed("run_", idgen.Default),
		newEventID: idgen.Prefixed("evt_", idgen.Default),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// BeginRun opens a run record and makes it current.
func (j *Journal) BeginRun(ctx context.Context) (string, error) {
	id := j.newRunID()
	if _, err := dbopen.Exec(ctx, j.db,
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`,
		id, j.now().UnixMilli()); err != nil {
		return "", fmt.Errorf("journal: begin run: %w", err)
	}
	j.mu.Lock()
	j.runID = id
	j.mu.Unlock()
	return id, nil
}

// RunID returns the current run, empty before BeginRun.
func (j *Journal) RunID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

// Transition records a state change. Implements outreach.Reporter.
func (j *Journal) Transition(ctx context.Context, ref exclusion.ProfileRef, from, to outreach.State) {
	j.insertEvent(ctx, ref, from.String(), to.String(), "", "")
}

// Finished records the terminal outcome as a closing event so the tag and
// absorbed error are kept with the transition history.
func (j *Journal) Finished(ctx context.Context, o outreach.Outcome) {
	j.insertEvent(ctx, o.Ref, o.State.String(), o.State.String(), string(o.Tag), o.Err)
}

func (j *Journal) insertEvent(ctx context.Context, ref exclusion.ProfileRef, from, to, tag, errText string) {
	runID := j.RunID()
	if runID == "" {
		return
	}
	_, err := dbopen.Exec(ctx, j.db,
		`INSERT INTO run_events (event_id, run_id, ref, from_state, to_state, tag, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.newEventID(), runID, string(ref), from, to,
		nullable(tag), nullable(errText), j.now().UnixMilli())
	if err != nil {
		j.logger.Warn("journal: record event failed", "run_id", runID, "ref", ref, "error", err)
	}
}

// EndRun closes the current run with its summary.
func (j *Journal) EndRun(ctx context.Context, sum outreach.Summary) error {
	runID := j.RunID()
	if runID == "" {
		return fmt.Errorf("journal: end run: no run in progress")
	}
	var fatal any
	if sum.Fatal != nil {
		fatal = sum.Fatal.Error()
	}

	err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, collected = ?, processed = ?, sent = ?,
			 excluded = ?, skipped = ?, deferred = ?, fatal = ? WHERE run_id = ?`,
			j.now().UnixMilli(), sum.Collected, sum.Processed, sum.Sent,
			sum.Excluded, sum.Skipped, sum.Deferred, fatal, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal: end run: %w", err)
	}

	j.mu.Lock()
	j.runID = ""
	j.mu.Unlock()
	return nil
}

// Events returns the events of runID in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT event_id, run_id, ref, from_state, to_state,
		        COALESCE(tag, ''), COALESCE(error, ''), created_at
		 FROM run_events WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ref string
		var ts int64
		if err := rows.Scan(&e.EventID, &e.RunID, &ref, &e.From, &e.To, &e.Tag, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		e.Ref = exclusion.ProfileRef(ref)
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRun reads one run record.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
		fatal    sql.NullString
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, collected, processed, sent,
		        excluded, skipped, deferred, fatal
		 FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &started, &finished,
		&r.Summary.Collected, &r.Summary.Processed, &r.Summary.Sent,
		&r.Summary.Excluded, &r.Summary.Skipped, &r.Summary.Deferred, &fatal)
	if err != nil {
		return nil, fmt.Errorf("journal: get run %s: %w", runID, err)
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	r.Fatal = fatal.String
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
