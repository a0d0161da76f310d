// CLAUDE:SUMMARY Live run progress: a mutex-guarded tracker fed as an outreach.Reporter and served as JSON over chi.
// Package status exposes the progress of the current outreach run over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/outreach"
)

// recentLimit bounds the outcomes kept in a snapshot.
const recentLimit = 20

// Outcome is the JSON form of a finished profile.
type Outcome struct {
	Ref        string `json:"ref"`
	State      string `json:"state"`
	Tag        string `json:"tag,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Snapshot is the JSON body of GET /status.
type Snapshot struct {
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Current   string    `json:"current,omitempty"`
	State     string    `json:"state,omitempty"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Excluded  int       `json:"excluded"`
	Recent    []Outcome `json:"recent"`
}

// Tracker accumulates run progress. It implements outreach.Reporter and is
// safe for concurrent readers.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker for runID.
func NewTracker(runID string) *Tracker {
	t := &Tracker{now: time.Now}
	t.snap = Snapshot{RunID: runID, StartedAt: t.now(), Recent: []Outcome{}}
	return t
}

func (t *Tracker) Transition(_ context.Context, ref exclusion.ProfileRef, _, to outreach.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Current = string(ref)
	t.snap.State = to.String()
}

func (t *Tracker) Finished(_ context.Context, o outreach.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Processed++
	switch o.State {
	case outreach.Sent:
		t.snap.Sent++
	case outreach.Excluded:
		t.snap.Excluded++
	}
	t.snap.Current = ""
	t.snap.State = ""

	t.snap.Recent = append(t.snap.Recent, Outcome{
		Ref:        string(o.Ref),
		State:      o.State.String(),
		Tag:        string(o.Tag),
		Error:      o.Err,
		DurationMs: o.Duration.Milliseconds(),
	})
	if n := len(t.snap.Recent); n > recentLimit {
		t.snap.Recent = append([]Outcome(nil), t.snap.Recent[n-recentLimit:]...)
	}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.Recent = append([]Outcome(nil), t.snap.Recent...)
	return s
}

// Handler serves GET /healthz and GET /status.
func Handler(t *Tracker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(jsonHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, t.Snapshot())
	})
	return r
}

// Server runs the status handler until Shutdown.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, h http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status: listen %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ln: ln,
	}
	go func() {
		logger.Info("status: serving", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status: server error", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
