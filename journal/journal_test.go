package journal

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/reachout/dbopen"
	"github.com/hazyhaar/reachout/idgen"
	"github.com/hazyhaar/reachout/outreach"
)

func newTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	opts = append([]Option{
		WithRunIDGenerator(idgen.Sequence("run_")),
		WithIDGenerator(idgen.Sequence("evt_")),
	}, opts...)
	j := New(db, opts...)
	base := time.UnixMilli(1_700_000_000_000)
	var tick int64
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return j
}

var _ outreach.Reporter = (*Journal)(nil)

func TestJournal_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	runID, err := j.BeginRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if runID != "run_1" || j.RunID() != runID {
		t.Fatalf("runID = %q, current = %q", runID, j.RunID())
	}

	j.Transition(ctx, "B", outreach.Pending, outreach.Navigating)
	j.Transition(ctx, "B", outreach.Navigating, outreach.ComposerFound)
	j.Transition(ctx, "B", outreach.ComposerFound, outreach.Sent)
	j.Finished(ctx, outreach.Outcome{Ref: "B", State: outreach.Sent, Tag: "fr"})

	sum := outreach.Summary{Collected: 3, Processed: 1, Sent: 1, Skipped: 1, Deferred: 1}
	if err := j.EndRun(ctx, sum); err != nil {
		t.Fatal(err)
	}
	if j.RunID() != "" {
		t.Fatal("run must be closed")
	}

	events, err := j.Events(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[0].From != "pending" || events[0].To != "navigating" {
		t.Fatalf("first event = %+v", events[0])
	}
	last := events[3]
	if last.To != "sent" || last.Tag != "fr" || last.Error != "" {
		t.Fatalf("closing event = %+v", last)
	}

	run, err := j.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Summary != sum {
		t.Fatalf("summary = %+v, want %+v", run.Summary, sum)
	}
	if run.FinishedAt.IsZero() || run.Fatal != "" {
		t.Fatalf("run = %+v", run)
	}
}

func TestJournal_FatalRecorded(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	runID, _ := j.BeginRun(ctx)
	if err := j.EndRun(ctx, outreach.Summary{Fatal: outreach.ErrSessionLost}); err != nil {
		t.Fatal(err)
	}
	run, err := j.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Fatal != outreach.ErrSessionLost.Error() {
		t.Fatalf("fatal = %q", run.Fatal)
	}
}

func TestJournal_NoRunIgnoresEvents(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	j.Transition(ctx, "x", outreach.Pending, outreach.Navigating)
	if err := j.EndRun(ctx, outreach.Summary{}); err == nil {
		t.Fatal("EndRun without BeginRun must fail")
	}

	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM run_events`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("events = %d, want 0", n)
	}
}

func TestJournal_WriteFailureIsLogged(t *testing.T) {
	// WHAT: A failing insert is logged and does not panic or propagate.
	ctx := context.Background()
	var buf bytes.Buffer
	j := newTestJournal(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if _, err := j.BeginRun(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := j.db.Exec(`DROP TABLE run_events`); err != nil {
		t.Fatal(err)
	}

	j.Transition(ctx, "x", outreach.Pending, outreach.Navigating)
	if !strings.Contains(buf.String(), "journal: record event failed") {
		t.Fatalf("log = %q", buf.String())
	}
}

func TestJournal_GetRunMissing(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.GetRun(context.Background(), "run_nope"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "run_nope") {
		t.Fatalf("err = %v", err)
	}
}
