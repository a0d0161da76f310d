package outreach

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/hazyhaar/reachout/classifier"
	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/navigator"
)

// memStore is an in-memory Store recording every Append.
type memStore struct {
	set       exclusion.Set
	appends   []exclusion.ProfileRef
	appendErr error
}

func newMemStore(refs ...exclusion.ProfileRef) *memStore {
	return &memStore{set: exclusion.NewSet(refs...)}
}

func (s *memStore) Contains(ref exclusion.ProfileRef) bool { return s.set.Has(ref) }

func (s *memStore) Append(ctx context.Context, ref exclusion.ProfileRef) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends = append(s.appends, ref)
	s.set.Add(ref)
	return nil
}

// profile scripts how one ref behaves in the fake world.
type profile struct {
	visitErr  error
	exhausted bool
	composer  error
	readErr   error
	name      string
	location  string
	sendErr   error
	// dismissErr fails every Dismiss on this profile.
	dismissErr error
}

// world fakes the navigator and the session. The session acts on the
// profile most recently visited.
type world struct {
	profiles map[exclusion.ProfileRef]profile
	current  exclusion.ProfileRef

	visits    []exclusion.ProfileRef
	lines     map[exclusion.ProfileRef][]string
	submits   []exclusion.ProfileRef
	dismisses []exclusion.ProfileRef

	// onSubmit runs after a submit is recorded.
	onSubmit func()
}

func newWorld(p map[exclusion.ProfileRef]profile) *world {
	return &world{profiles: p, lines: map[exclusion.ProfileRef][]string{}}
}

func (w *world) Visit(ctx context.Context, ref exclusion.ProfileRef) (navigator.Result, error) {
	w.visits = append(w.visits, ref)
	w.current = ref
	p := w.profiles[ref]
	if p.visitErr != nil {
		return navigator.Exhausted, p.visitErr
	}
	if p.exhausted {
		return navigator.Exhausted, nil
	}
	return navigator.Visited, nil
}

func (w *world) OpenComposer(ctx context.Context) error { return w.profiles[w.current].composer }

func (w *world) ReadProfile(ctx context.Context) (Profile, error) {
	p := w.profiles[w.current]
	if p.readErr != nil {
		return Profile{}, p.readErr
	}
	return Profile{DisplayName: p.name, Location: p.location}, nil
}

func (w *world) SendLine(ctx context.Context, line string) error {
	if err := w.profiles[w.current].sendErr; err != nil {
		return err
	}
	w.lines[w.current] = append(w.lines[w.current], line)
	return nil
}

func (w *world) Submit(ctx context.Context) error {
	w.submits = append(w.submits, w.current)
	if w.onSubmit != nil {
		w.onSubmit()
	}
	return nil
}

func (w *world) Dismiss(ctx context.Context) error {
	w.dismisses = append(w.dismisses, w.current)
	if err := w.profiles[w.current].dismissErr; err != nil {
		return err
	}
	return ctx.Err()
}

// lang classifies "Paris" as French and everything else as English.
type lang struct{}

func (lang) Classify(ctx context.Context, location string) classifier.Tag {
	if location == "Paris" {
		return classifier.French
	}
	return classifier.English
}

// recReporter records transitions as "ref:from>to".
type recReporter struct {
	transitions []string
	outcomes    []Outcome
}

func (r *recReporter) Transition(ctx context.Context, ref exclusion.ProfileRef, from, to State) {
	r.transitions = append(r.transitions, fmt.Sprintf("%s:%s>%s", ref, from, to))
}

func (r *recReporter) Finished(ctx context.Context, o Outcome) { r.outcomes = append(r.outcomes, o) }

func TestRun_Scenario(t *testing.T) {
	// WHAT: E = {A}; B opens a composer and gets a message, C has no
	// message affordance. Afterwards E = {A, B, C} and only B was messaged.
	store := newMemStore("A")
	w := newWorld(map[exclusion.ProfileRef]profile{
		"B": {name: "Marie Curie", location: "Paris"},
		"C": {composer: ErrNotFound},
	})
	rep := &recReporter{}
	o := New(store, w, w, lang{}, Config{Reporter: rep})

	sum, err := o.Run(context.Background(), []exclusion.ProfileRef{"A", "B", "C"})
	if err != nil {
		t.Fatal(err)
	}

	for _, ref := range []exclusion.ProfileRef{"A", "B", "C"} {
		if !store.Contains(ref) {
			t.Errorf("%s not excluded after run", ref)
		}
	}
	if !slices.Equal(store.appends, []exclusion.ProfileRef{"B", "C"}) {
		t.Fatalf("appends = %v, want [B C]", store.appends)
	}
	if !slices.Equal(w.visits, []exclusion.ProfileRef{"B", "C"}) {
		t.Fatalf("visits = %v; A must not be visited", w.visits)
	}
	if !slices.Equal(w.lines["B"], French("Marie")) {
		t.Fatalf("B lines = %q", w.lines["B"])
	}
	if len(w.lines["C"]) != 0 {
		t.Fatalf("C was messaged: %q", w.lines["C"])
	}
	if !slices.Equal(w.submits, []exclusion.ProfileRef{"B"}) {
		t.Fatalf("submits = %v", w.submits)
	}
	if !slices.Contains(w.dismisses, "C") {
		t.Fatal("composer-not-found must dismiss")
	}

	want := Summary{Collected: 3, Processed: 2, Sent: 1, Excluded: 1, Skipped: 1}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}

	wantTrans := []string{
		"B:pending>navigating", "B:navigating>composer_found", "B:composer_found>sent",
		"C:pending>navigating", "C:navigating>composer_not_found", "C:composer_not_found>excluded",
	}
	if !slices.Equal(rep.transitions, wantTrans) {
		t.Fatalf("transitions = %v", rep.transitions)
	}
	if len(rep.outcomes) != 2 || rep.outcomes[0].Tag != classifier.French || rep.outcomes[1].Err == "" {
		t.Fatalf("outcomes = %+v", rep.outcomes)
	}
}

func TestRun_NoDoubleProcessing(t *testing.T) {
	// WHAT: For E and candidates K, after a full run E' ⊇ E and every
	// candidate not in E is in E'. A duplicate candidate is handled once.
	store := newMemStore("x")
	w := newWorld(map[exclusion.ProfileRef]profile{
		"b": {exhausted: true},
		"c": {composer: errors.New("stale element")},
	})
	o := New(store, w, w, lang{}, Config{})

	cands := []exclusion.ProfileRef{"a", "b", "a", "c", "x"}
	sum, err := o.Run(context.Background(), cands)
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range cands {
		if !store.Contains(ref) {
			t.Errorf("%s missing from exclusion set", ref)
		}
	}
	seen := map[exclusion.ProfileRef]int{}
	for _, r := range store.appends {
		seen[r]++
	}
	for r, n := range seen {
		if n != 1 {
			t.Errorf("%s appended %d times", r, n)
		}
	}
	if sum.Skipped != 2 || sum.Processed != 3 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRun_ExhaustedIsExcludedWithoutMessage(t *testing.T) {
	store := newMemStore()
	w := newWorld(map[exclusion.ProfileRef]profile{"a": {exhausted: true}})
	o := New(store, w, w, lang{}, Config{})

	out, err := o.Process(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != Excluded || !store.Contains("a") {
		t.Fatalf("out = %+v", out)
	}
	if len(w.lines) != 0 || len(w.submits) != 0 {
		t.Fatal("exhausted navigation must not message")
	}
}

func TestRun_Cap(t *testing.T) {
	store := newMemStore()
	w := newWorld(nil)
	o := New(store, w, w, lang{}, Config{})

	cands := make([]exclusion.ProfileRef, 60)
	for i := range cands {
		cands[i] = exclusion.ProfileRef(fmt.Sprintf("p%02d", i))
	}
	sum, err := o.Run(context.Background(), cands)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 50 || sum.Deferred != 10 || len(store.appends) != 50 {
		t.Fatalf("summary = %+v, appends = %d", sum, len(store.appends))
	}
	if store.Contains("p50") {
		t.Fatal("deferred candidate was recorded")
	}
}

func TestRun_SkipsDoNotCountTowardCap(t *testing.T) {
	store := newMemStore("a", "b")
	w := newWorld(nil)
	o := New(store, w, w, lang{}, Config{MaxPerRun: 1})

	sum, _ := o.Run(context.Background(), []exclusion.ProfileRef{"a", "b", "c", "d"})
	if sum.Skipped != 2 || sum.Processed != 1 || sum.Deferred != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRun_SessionLostAborts(t *testing.T) {
	// WHAT: A fatal error leaves the in-flight ref un-excluded and stops
	// the run before later candidates.
	store := newMemStore()
	w := newWorld(map[exclusion.ProfileRef]profile{
		"b": {composer: fmt.Errorf("browser: %w", ErrSessionLost)},
	})
	o := New(store, w, w, lang{}, Config{})

	sum, err := o.Run(context.Background(), []exclusion.ProfileRef{"a", "b", "c"})
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("err = %v, want ErrSessionLost", err)
	}
	if !errors.Is(sum.Fatal, ErrSessionLost) {
		t.Fatalf("summary.Fatal = %v", sum.Fatal)
	}
	if store.Contains("b") || store.Contains("c") {
		t.Fatalf("appends = %v; in-flight and later refs must not be recorded", store.appends)
	}
	if !store.Contains("a") {
		t.Fatal("completed ref must stay recorded")
	}
}

func TestRun_AppendFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("disk full")
	w := newWorld(nil)
	o := New(store, w, w, lang{}, Config{})

	sum, err := o.Run(context.Background(), []exclusion.ProfileRef{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if len(w.visits) != 1 {
		t.Fatalf("visits = %v; run must stop after a failed append", w.visits)
	}
	if sum.Sent != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	// WHAT: A run whose ctx is already done leaves every candidate Pending.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemStore()
	w := newWorld(nil)
	o := New(store, w, w, lang{}, Config{})

	sum, err := o.Run(ctx, []exclusion.ProfileRef{"a"})
	if !errors.Is(err, context.Canceled) || !errors.Is(sum.Fatal, context.Canceled) {
		t.Fatalf("err = %v, fatal = %v", err, sum.Fatal)
	}
	if len(w.visits) != 0 || store.Contains("a") {
		t.Fatalf("visits = %v; a cancelled run must not start a profile", w.visits)
	}
}

func TestRun_CancelAfterSubmitStillRecords(t *testing.T) {
	// WHAT: Cancelling the run while a message is being sent finishes that
	// profile: it reaches Sent and is on disk, and no later profile starts.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := exclusion.OpenFile(t.TempDir() + "/excluded_profiles.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}

	w := newWorld(map[exclusion.ProfileRef]profile{"b": {name: "Jean Dupont", location: "Paris"}})
	w.onSubmit = cancel
	rep := &recReporter{}
	o := New(store, w, w, lang{}, Config{Reporter: rep})

	sum, err := o.Run(ctx, []exclusion.ProfileRef{"b", "c"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled between profiles", err)
	}
	if sum.Sent != 1 || !slices.Equal(w.submits, []exclusion.ProfileRef{"b"}) {
		t.Fatalf("summary = %+v, submits = %v", sum, w.submits)
	}
	if slices.Contains(w.visits, "c") {
		t.Fatal("c started after cancellation")
	}

	reopened, err := exclusion.OpenFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	set, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !set.Has("b") || set.Has("c") {
		t.Fatalf("log = %v, want only b", set)
	}
	if len(rep.outcomes) != 1 || rep.outcomes[0].State != Sent {
		t.Fatalf("outcomes = %+v", rep.outcomes)
	}
}

func TestProcess_DismissFailureAfterSendKeepsSent(t *testing.T) {
	store := newMemStore()
	w := newWorld(map[exclusion.ProfileRef]profile{
		"b": {name: "Jean Dupont", location: "Paris", dismissErr: errors.New("escape failed")},
	})
	o := New(store, w, w, lang{}, Config{})

	out, err := o.Process(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != Sent || out.Tag != classifier.French || out.Err != "" {
		t.Fatalf("out = %+v", out)
	}
	if len(w.dismisses) != 1 {
		t.Fatalf("dismisses = %v, want one", w.dismisses)
	}
	if !store.Contains("b") {
		t.Fatal("b not recorded")
	}
}

func TestRun_CapCountsExcludedRestAsSkipped(t *testing.T) {
	store := newMemStore("c")
	w := newWorld(nil)
	o := New(store, w, w, lang{}, Config{MaxPerRun: 1})

	sum, err := o.Run(context.Background(), []exclusion.ProfileRef{"a", "b", "c", "d", "d"})
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Collected: 5, Processed: 1, Sent: 1, Skipped: 2, Deferred: 2}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
}

func TestProcess_NonFatalVisitError(t *testing.T) {
	store := newMemStore()
	w := newWorld(map[exclusion.ProfileRef]profile{"::bad": {visitErr: errors.New("invalid url")}})
	o := New(store, w, w, lang{}, Config{})

	out, err := o.Process(context.Background(), "::bad")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != Excluded || out.Err == "" {
		t.Fatalf("out = %+v", out)
	}
}

func TestProcess_ComposeErrorsAreAbsorbed(t *testing.T) {
	tests := []struct {
		name string
		p    profile
	}{
		{"location missing", profile{readErr: ErrNotFound}},
		{"keystroke fails", profile{name: "Ada", sendErr: errors.New("input: detached")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			w := newWorld(map[exclusion.ProfileRef]profile{"a": tt.p})
			o := New(store, w, w, lang{}, Config{})

			out, err := o.Process(context.Background(), "a")
			if err != nil {
				t.Fatal(err)
			}
			if out.State != Excluded || !store.Contains("a") {
				t.Fatalf("out = %+v", out)
			}
			if len(w.submits) != 0 {
				t.Fatal("failed compose must not submit")
			}
			if !slices.Contains(w.dismisses, "a") {
				t.Fatal("failed compose must dismiss")
			}
		})
	}
}

func TestProcess_EnglishDefault(t *testing.T) {
	store := newMemStore()
	w := newWorld(map[exclusion.ProfileRef]profile{"a": {name: "Grace Hopper", location: "Arlington, Virginia"}})
	o := New(store, w, w, lang{}, Config{})

	out, err := o.Process(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != Sent || out.Tag != classifier.English {
		t.Fatalf("out = %+v", out)
	}
	if got := w.lines["a"][0]; !strings.HasPrefix(got, "Hello Grace !") {
		t.Fatalf("first line = %q", got)
	}
}
