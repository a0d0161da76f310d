// CLAUDE:SUMMARY Per-profile outreach state machine and capped sequential run loop; every terminal state is recorded exactly once.
// Package outreach drives each candidate profile through
// navigate → open composer → classify → send, recording every profile that
// reaches a terminal state in the exclusion store before moving on.
//
// Exactly one profile is in flight at a time. Timeouts and missing elements
// become terminal outcomes. Cancellation is honoured between profiles only:
// a profile that left Pending runs to its terminal state and is recorded.
// A lost session or an exclusion write that does not land aborts the run
// and leaves the in-flight profile unrecorded so a later run retries it.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/reachout/classifier"
	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/navigator"
)

// Session is the page-level collaborator for an already-visited profile.
type Session interface {
	// OpenComposer clicks the message affordance and waits for the composer.
	// It returns ErrNotFound when either does not appear in time.
	OpenComposer(ctx context.Context) error
	// ReadProfile reads the display name and location of the current profile.
	ReadProfile(ctx context.Context) (Profile, error)
	// SendLine types one line followed by two line breaks.
	SendLine(ctx context.Context, line string) error
	// Submit sends the composed message.
	Submit(ctx context.Context) error
	// Dismiss closes the composer or any overlay.
	Dismiss(ctx context.Context) error
}

// Navigator visits a profile with bounded retry.
type Navigator interface {
	Visit(ctx context.Context, ref exclusion.ProfileRef) (navigator.Result, error)
}

// Classifier picks the message language for a location.
type Classifier interface {
	Classify(ctx context.Context, location string) classifier.Tag
}

// Store is the subset of the exclusion store the run writes to.
type Store interface {
	Contains(ref exclusion.ProfileRef) bool
	Append(ctx context.Context, ref exclusion.ProfileRef) error
}

// Config configures an Orchestrator.
type Config struct {
	// MaxPerRun bounds how many profiles leave Pending in one run. Default: 50.
	MaxPerRun int
	// Pause is waited between two profiles. Default: 0.
	Pause time.Duration
	// Reporter receives transitions and outcomes. Default: LogReporter.
	Reporter Reporter

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Reporter == nil {
		c.Reporter = LogReporter{Logger: c.Logger}
	}
}

// Summary counts what a run did.
type Summary struct {
	Collected int // candidates handed to Run
	Processed int // profiles that left Pending
	Sent      int
	Excluded  int
	Skipped   int   // already excluded at the time they came up
	Deferred  int   // left for a later run by the cap
	Fatal     error // non-nil when the run aborted
}

// Orchestrator runs the outreach state machine.
type Orchestrator struct {
	store Store
	nav   Navigator
	sess  Session
	cls   Classifier
	cfg   Config
}

// New creates an Orchestrator.
func New(store Store, nav Navigator, sess Session, cls Classifier, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{store: store, nav: nav, sess: sess, cls: cls, cfg: cfg}
}

// Run processes candidates in order until the cap is reached, the list is
// exhausted, ctx is done, or a fatal error occurs. ctx is checked before
// each profile; a profile already in flight is finished first. The
// returned error equals Summary.Fatal.
func (o *Orchestrator) Run(ctx context.Context, candidates []exclusion.ProfileRef) (Summary, error) {
	log := o.cfg.Logger
	sum := Summary{Collected: len(candidates)}

	for i, ref := range candidates {
		if err := ctx.Err(); err != nil {
			sum.Fatal = err
			log.WarnContext(ctx, "outreach: run cancelled", "processed", sum.Processed, "error", err)
			return sum, err
		}
		if sum.Processed >= o.cfg.MaxPerRun {
			o.countRest(&sum, candidates[i:])
			log.InfoContext(ctx, "outreach: run cap reached",
				"max_per_run", o.cfg.MaxPerRun, "deferred", sum.Deferred)
			break
		}
		if o.store.Contains(ref) {
			sum.Skipped++
			continue
		}
		if sum.Processed > 0 && o.cfg.Pause > 0 {
			if err := sleepCtx(ctx, o.cfg.Pause); err != nil {
				sum.Fatal = err
				return sum, err
			}
		}

		sum.Processed++
		out, err := o.Process(ctx, ref)
		if err != nil {
			sum.Fatal = err
			log.ErrorContext(ctx, "outreach: run aborted", "ref", ref, "error", err)
			return sum, err
		}
		switch out.State {
		case Sent:
			sum.Sent++
		case Excluded:
			sum.Excluded++
		}
	}

	log.InfoContext(ctx, "outreach: run complete",
		"collected", sum.Collected,
		"processed", sum.Processed,
		"sent", sum.Sent,
		"excluded", sum.Excluded,
		"skipped", sum.Skipped,
		"deferred", sum.Deferred)
	return sum, nil
}

// countRest splits the candidates left by the cap into already excluded
// (skipped) and left for a later run (deferred), once per ref.
func (o *Orchestrator) countRest(sum *Summary, rest []exclusion.ProfileRef) {
	seen := exclusion.NewSet()
	for _, ref := range rest {
		if o.store.Contains(ref) || !seen.Add(ref) {
			sum.Skipped++
			continue
		}
		sum.Deferred++
	}
}

// Process drives one profile from Pending to a terminal state and records it.
// If ctx is already done the profile stays Pending and ctx.Err() is returned.
// Past that point the steps run detached from ctx's cancellation, bounded
// by the session's per-wait timeouts and the navigator's attempt cap.
// A non-nil error is fatal: the profile was not recorded.
func (o *Orchestrator) Process(ctx context.Context, ref exclusion.ProfileRef) (Outcome, error) {
	start := time.Now()
	out := Outcome{Ref: ref}
	state := Pending
	if err := ctx.Err(); err != nil {
		return out, err
	}
	work := context.WithoutCancel(ctx)

	move := func(to State) {
		o.cfg.Reporter.Transition(work, ref, state, to)
		state = to
	}
	absorb := func(err error) {
		if out.Err == "" {
			out.Err = err.Error()
		}
	}

	for !state.Terminal() {
		switch state {
		case Pending:
			move(Navigating)

		case Navigating:
			res, err := o.nav.Visit(work, ref)
			switch {
			case err != nil && isFatal(err):
				return out, err
			case err != nil:
				absorb(err)
				move(Excluded)
			case res == navigator.Exhausted:
				absorb(errors.New("navigation exhausted"))
				move(Excluded)
			default:
				if err := o.sess.OpenComposer(work); err != nil {
					if isFatal(err) {
						return out, err
					}
					absorb(err)
					move(ComposerNotFound)
				} else {
					move(ComposerFound)
				}
			}

		case ComposerNotFound:
			if err := o.sess.Dismiss(work); err != nil && isFatal(err) {
				return out, err
			}
			move(Excluded)

		case ComposerFound:
			tag, err := o.compose(work)
			if err != nil {
				if isFatal(err) {
					return out, err
				}
				absorb(err)
				if derr := o.sess.Dismiss(work); derr != nil && isFatal(derr) {
					return out, derr
				}
				move(Excluded)
				break
			}
			out.Tag = tag
			// The message is out; a composer left open does not change that.
			if derr := o.sess.Dismiss(work); derr != nil {
				o.cfg.Logger.WarnContext(work, "outreach: dismiss after send", "ref", ref, "error", derr)
			}
			move(Sent)
		}
	}

	if err := o.store.Append(work, ref); err != nil {
		return out, fmt.Errorf("outreach: record %s: %w", ref, err)
	}

	out.State = state
	out.Duration = time.Since(start)
	o.cfg.Reporter.Finished(work, out)
	return out, nil
}

// compose reads the profile, picks the language, types and submits the
// message. The composer is left open.
func (o *Orchestrator) compose(ctx context.Context) (classifier.Tag, error) {
	p, err := o.sess.ReadProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	first := p.FirstName
	if first == "" {
		first = FirstName(p.DisplayName)
	}

	tag := o.cls.Classify(ctx, p.Location)
	for i, line := range Select(tag, first) {
		if err := o.sess.SendLine(ctx, line); err != nil {
			return tag, fmt.Errorf("send line %d: %w", i+1, err)
		}
	}
	if err := o.sess.Submit(ctx); err != nil {
		return tag, fmt.Errorf("submit: %w", err)
	}
	return tag, nil
}

// isFatal reports whether err must abort the run.
func isFatal(err error) bool {
	return errors.Is(err, ErrSessionLost)
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
