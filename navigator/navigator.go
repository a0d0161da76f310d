// CLAUDE:SUMMARY Visits a profile with bounded exponential backoff on transient failures; exhaustion is a result, not an error.
// Package navigator visits profile pages, retrying transient failures with
// exponential backoff up to a bounded number of attempts.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/reachout/exclusion"
)

// ErrTransient marks a timeout-class failure worth retrying: a read timeout
// during navigation, or the confirming marker not appearing in time.
var ErrTransient = errors.New("navigator: transient failure")

// Visitor performs a single navigation attempt. It returns nil once the
// confirming marker is observable on the target page.
type Visitor interface {
	Visit(ctx context.Context, ref exclusion.ProfileRef) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(ctx context.Context, ref exclusion.ProfileRef) error

func (f VisitorFunc) Visit(ctx context.Context, ref exclusion.ProfileRef) error { return f(ctx, ref) }

// Result is the outcome of a bounded visit.
type Result int

const (
	Visited   Result = iota // confirming marker observed
	Exhausted               // every attempt failed transiently
)

func (r Result) String() string {
	switch r {
	case Visited:
		return "visited"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Config configures a Navigator.
type Config struct {
	// MaxAttempts is the total number of navigation attempts. Default: 5.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt, doubled for each
	// subsequent one. Default: 2s.
	BaseDelay time.Duration
	// Sleep waits d or until ctx is done. Default: a timer select.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Navigator wraps a Visitor with the retry policy.
type Navigator struct {
	v   Visitor
	cfg Config
}

// New creates a Navigator.
func New(v Visitor, cfg Config) *Navigator {
	cfg.defaults()
	return &Navigator{v: v, cfg: cfg}
}

// MaxAttempts returns the configured attempt bound.
func (n *Navigator) MaxAttempts() int { return n.cfg.MaxAttempts }

// Backoff returns the delay before attempt k: zero for the first attempt,
// base × 2^(k-2) afterwards.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base * (1 << uint(attempt-2))
}

// IsTransient reports whether err belongs to the retryable class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// Visit navigates to ref. Transient failures are retried; once every
// attempt has failed transiently Visit returns Exhausted and a nil error.
// Any other failure is returned at once without consuming the remaining
// attempts. Cancellation of ctx is returned as an error.
func (n *Navigator) Visit(ctx context.Context, ref exclusion.ProfileRef) (Result, error) {
	log := n.cfg.Logger
	limit := n.cfg.MaxAttempts

	var lastErr error
	for attempt, delay := 1, time.Duration(0); attempt <= limit; attempt++ {
		if delay > 0 {
			log.WarnContext(ctx, "navigator: retrying visit",
				"ref", ref,
				"attempt", attempt,
				"max_attempts", limit,
				"backoff_ms", delay.Milliseconds(),
				"error", lastErr)
			if err := n.cfg.Sleep(ctx, delay); err != nil {
				return Exhausted, err
			}
		}

		err := n.v.Visit(ctx, ref)
		if err == nil {
			return Visited, nil
		}
		// A done parent context is never a per-attempt timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Exhausted, ctxErr
		}
		if !IsTransient(err) {
			return Exhausted, fmt.Errorf("navigator: visit %s: %w", ref, err)
		}
		lastErr = err
		delay = Backoff(n.cfg.BaseDelay, attempt+1)
	}

	log.WarnContext(ctx, "navigator: attempts exhausted",
		"ref", ref, "max_attempts", limit, "error", lastErr)
	return Exhausted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
