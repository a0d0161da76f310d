package outreach

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/reachout/classifier"
	"github.com/hazyhaar/reachout/exclusion"
)

// Outcome is the terminal result for one profile.
type Outcome struct {
	Ref      exclusion.ProfileRef
	State    State
	Tag      classifier.Tag // empty unless a message was composed
	Err      string         // non-fatal error absorbed into the terminal state
	Duration time.Duration
}

// Reporter observes state transitions. Implementations must not block the
// run on their own failures.
type Reporter interface {
	Transition(ctx context.Context, ref exclusion.ProfileRef, from, to State)
	Finished(ctx context.Context, o Outcome)
}

// LogReporter reports through slog.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r LogReporter) Transition(ctx context.Context, ref exclusion.ProfileRef, from, to State) {
	r.logger().DebugContext(ctx, "outreach: transition",
		"ref", ref, "from", from.String(), "to", to.String())
}

func (r LogReporter) Finished(ctx context.Context, o Outcome) {
	attrs := []any{
		"ref", o.Ref,
		"state", o.State.String(),
		"duration_ms", o.Duration.Milliseconds(),
	}
	if o.Tag != "" {
		attrs = append(attrs, "tag", string(o.Tag))
	}
	if o.Err != "" {
		attrs = append(attrs, "error", o.Err)
	}
	r.logger().InfoContext(ctx, "outreach: profile done", attrs...)
}

// MultiReporter fans out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Transition(ctx context.Context, ref exclusion.ProfileRef, from, to State) {
	for _, r := range m {
		r.Transition(ctx, ref, from, to)
	}
}

func (m MultiReporter) Finished(ctx context.Context, o Outcome) {
	for _, r := range m {
		r.Finished(ctx, o)
	}
}
