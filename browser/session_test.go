package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/reachout/collector"
	"github.com/hazyhaar/reachout/navigator"
	"github.com/hazyhaar/reachout/outreach"
)

var (
	_ collector.Listing = (*Session)(nil)
	_ navigator.Visitor = (*Session)(nil)
	_ outreach.Session  = (*Session)(nil)
)

func TestIsLoginWall(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/login", true},
		{"https://www.linkedin.com/login?session_redirect=x", true},
		{"https://www.linkedin.com/checkpoint/lg/login-submit", true},
		{"https://www.linkedin.com/authwall?trk=foo", true},
		{"https://www.linkedin.com/uas/login", true},
		{"https://www.linkedin.com/in/jane-doe/", false},
		{"https://www.linkedin.com/in/login-expert/", false},
		{"https://www.linkedin.com/feed/", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		if got := IsLoginWall(tt.url); got != tt.want {
			t.Errorf("IsLoginWall(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestWaitErr(t *testing.T) {
	t.Run("timeout becomes kind", func(t *testing.T) {
		err := waitErr(context.Background(), "profile marker", context.DeadlineExceeded, navigator.ErrTransient)
		if !errors.Is(err, navigator.ErrTransient) {
			t.Fatalf("err = %v", err)
		}
		if !navigator.IsTransient(err) {
			t.Fatal("must be retryable")
		}
	})

	t.Run("element not found becomes kind", func(t *testing.T) {
		err := waitErr(context.Background(), "composer", fmt.Errorf("wrap: %w", &rod.ElementNotFoundError{}), outreach.ErrNotFound)
		if !errors.Is(err, outreach.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("not found is not transient", func(t *testing.T) {
		err := waitErr(context.Background(), "composer", context.DeadlineExceeded, outreach.ErrNotFound)
		if navigator.IsTransient(err) {
			t.Fatalf("ErrNotFound must not be retried: %v", err)
		}
	})

	t.Run("parent cancellation wins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := waitErr(ctx, "x", context.DeadlineExceeded, outreach.ErrNotFound)
		if !errors.Is(err, context.Canceled) || errors.Is(err, outreach.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("stalled key input is neither transient nor not-found", func(t *testing.T) {
		err := waitErr(context.Background(), "dismiss", context.DeadlineExceeded, errKeyTimeout)
		if !errors.Is(err, errKeyTimeout) || navigator.IsTransient(err) || errors.Is(err, outreach.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := errors.New("cdp: websocket closed")
		err := waitErr(context.Background(), "x", cause, outreach.ErrNotFound)
		if !errors.Is(err, cause) || errors.Is(err, outreach.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestSelectorsMerge(t *testing.T) {
	s := Selectors{Location: "span.custom-location"}.Merge()
	if s.Location != "span.custom-location" {
		t.Fatalf("override lost: %q", s.Location)
	}
	d := DefaultSelectors()
	if s.MessageButton != d.MessageButton || s.ConnectionsURL != d.ConnectionsURL {
		t.Fatalf("defaults not filled: %+v", s)
	}
}

func TestTimeoutsDefaults(t *testing.T) {
	tm := Timeouts{Composer: time.Second}
	tm.defaults()
	if tm.Composer != time.Second {
		t.Fatalf("override lost: %v", tm.Composer)
	}
	if tm.Login != 30*time.Second || tm.MessageButton != 15*time.Second || tm.Profile != 10*time.Second {
		t.Fatalf("defaults = %+v", tm)
	}
}

func TestManager_NewPageBeforeStart(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.NewPage(); err == nil {
		t.Fatal("expected error without a started browser")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start after Close must fail")
	}
}
