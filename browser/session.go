package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/navigator"
	"github.com/hazyhaar/reachout/outreach"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Selectors Selectors
	Timeouts  Timeouts
	Logger    *slog.Logger
}

// Session drives one authenticated page. It implements collector.Listing,
// navigator.Visitor and outreach.Session.
type Session struct {
	page   *rod.Page
	sel    Selectors
	t      Timeouts
	logger *slog.Logger
}

// NewSession wraps page.
func NewSession(page *rod.Page, cfg SessionConfig) *Session {
	cfg.Timeouts.defaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		page:   page,
		sel:    cfg.Selectors.Merge(),
		t:      cfg.Timeouts,
		logger: cfg.Logger,
	}
}

// Close closes the page.
func (s *Session) Close() error { return s.page.Close() }

// Login signs in with the given credentials and waits for the feed. Any
// failure is fatal to the run.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if err := s.navigate(ctx, s.sel.HomeURL); err != nil {
		return fmt.Errorf("browser: login: %w", err)
	}

	// The cookie banner only shows for some sessions.
	if el, err := s.find(ctx, s.t.Cookie, s.sel.CookieAccept); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.logger.Debug("browser: cookie banner click", "error", err)
		}
	}

	for _, f := range []struct{ sel, value string }{
		{s.sel.EmailInput, email},
		{s.sel.PasswordInput, password},
	} {
		el, err := s.find(ctx, s.t.Field, f.sel)
		if err != nil {
			return fmt.Errorf("browser: login: field %s: %w", f.sel, err)
		}
		if err := el.Input(f.value); err != nil {
			return fmt.Errorf("browser: login: type %s: %w", f.sel, err)
		}
	}

	submit, err := s.find(ctx, s.t.Login, s.sel.SubmitLogin)
	if err != nil {
		return fmt.Errorf("browser: login: submit: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: login: click submit: %w", err)
	}
	if _, err := s.find(ctx, s.t.Login, s.sel.FeedMarker); err != nil {
		return fmt.Errorf("browser: login: feed did not appear: %w", err)
	}

	s.logger.Info("browser: logged in")
	return nil
}

// OpenConnections navigates to the connections listing.
func (s *Session) OpenConnections(ctx context.Context) error {
	if err := s.navigate(ctx, s.sel.ConnectionsURL); err != nil {
		return fmt.Errorf("browser: connections: %w", err)
	}
	if err := s.checkSession(); err != nil {
		return err
	}
	if _, err := s.find(ctx, s.t.Listing, s.sel.ListingHeader); err != nil {
		return fmt.Errorf("browser: connections: header: %w", err)
	}
	return nil
}

// LoadMore scrolls to the bottom and clicks the load-more button. It
// reports false once the button no longer appears.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	if _, err := s.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		return false, fmt.Errorf("browser: scroll: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, s.t.LoadMore)
	defer cancel()
	el, err := s.page.Context(wctx).ElementR(s.sel.LoadMore, s.sel.LoadMoreLabel)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if isWaitTimeout(err) {
			return false, nil
		}
		return false, fmt.Errorf("browser: load more: %w", err)
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("browser: click load more: %w", err)
	}
	return true, nil
}

// HTML snapshots the current document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: snapshot: %w", err)
	}
	return html, nil
}

// Visit navigates to a profile and waits for its heading. Timeouts are
// reported as navigator.ErrTransient.
func (s *Session) Visit(ctx context.Context, ref exclusion.ProfileRef) error {
	target := string(ref)
	if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("browser: invalid profile url %q", target)
	}

	if err := s.navigate(ctx, target); err != nil {
		return err
	}
	if err := s.checkSession(); err != nil {
		return err
	}
	if _, err := s.find(ctx, s.t.Profile, s.sel.ProfileMarker); err != nil {
		return waitErr(ctx, "profile marker", err, navigator.ErrTransient)
	}
	return nil
}

// OpenComposer clicks the message button and waits for the composer.
func (s *Session) OpenComposer(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, s.t.MessageButton)
	defer cancel()
	btn, err := s.page.Context(wctx).ElementX(s.sel.MessageButton)
	if err != nil {
		if lost := s.checkSession(); lost != nil {
			return lost
		}
		return waitErr(ctx, "message button", err, outreach.ErrNotFound)
	}
	if err := btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click message button: %w", err)
	}

	cctx, ccancel := context.WithTimeout(ctx, s.t.Composer)
	defer ccancel()
	if _, err := s.page.Context(cctx).ElementR(s.sel.ComposerTitle, s.sel.ComposerLabel); err != nil {
		return waitErr(ctx, "composer", err, outreach.ErrNotFound)
	}
	return nil
}

// ReadProfile reads the location and display name of the current profile.
func (s *Session) ReadProfile(ctx context.Context) (outreach.Profile, error) {
	location, err := s.text(ctx, s.sel.Location)
	if err != nil {
		return outreach.Profile{}, err
	}
	name, err := s.text(ctx, s.sel.DisplayName)
	if err != nil {
		return outreach.Profile{}, err
	}
	return outreach.Profile{
		DisplayName: name,
		FirstName:   outreach.FirstName(name),
		Location:    location,
	}, nil
}

// SendLine inserts line into the focused composer followed by two line breaks.
// Key events go through KeyActions so the page context bounds them; the
// page's own Keyboard keeps the context of the page it was created with.
func (s *Session) SendLine(ctx context.Context, line string) error {
	kctx, cancel := context.WithTimeout(ctx, s.t.Field)
	defer cancel()
	p := s.page.Context(kctx)
	if err := p.InsertText(line); err != nil {
		return waitErr(ctx, "type line", err, errKeyTimeout)
	}
	if err := p.KeyActions().Type(input.Enter, input.Enter).Do(); err != nil {
		return waitErr(ctx, "line breaks", err, errKeyTimeout)
	}
	return nil
}

// Submit sends the composed message with Control+Enter.
func (s *Session) Submit(ctx context.Context) error {
	kctx, cancel := context.WithTimeout(ctx, s.t.Field)
	defer cancel()
	if err := s.page.Context(kctx).KeyActions().Press(input.ControlLeft).Type(input.Enter).Do(); err != nil {
		return waitErr(ctx, "submit", err, errKeyTimeout)
	}
	return nil
}

// Dismiss presses Escape to close the composer or any overlay.
func (s *Session) Dismiss(ctx context.Context) error {
	kctx, cancel := context.WithTimeout(ctx, s.t.Field)
	defer cancel()
	if err := s.page.Context(kctx).KeyActions().Type(input.Escape).Do(); err != nil {
		return waitErr(ctx, "dismiss", err, errKeyTimeout)
	}
	return nil
}

func (s *Session) navigate(ctx context.Context, target string) error {
	nctx, cancel := context.WithTimeout(ctx, s.t.Navigation)
	defer cancel()
	if err := s.page.Context(nctx).Navigate(target); err != nil {
		return waitErr(ctx, "navigate "+target, err, navigator.ErrTransient)
	}
	return nil
}

func (s *Session) find(ctx context.Context, d time.Duration, selector string) (*rod.Element, error) {
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	el, err := s.page.Context(wctx).Element(selector)
	if err != nil {
		return nil, waitErr(ctx, selector, err, outreach.ErrNotFound)
	}
	return el.Context(ctx), nil
}

func (s *Session) text(ctx context.Context, selector string) (string, error) {
	el, err := s.find(ctx, s.t.Field, selector)
	if err != nil {
		return "", err
	}
	txt, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("browser: read %s: %w", selector, err)
	}
	return strings.TrimSpace(txt), nil
}

// checkSession maps a redirect to the login wall to ErrSessionLost.
func (s *Session) checkSession() error {
	info, err := s.page.Info()
	if err != nil {
		return nil
	}
	if IsLoginWall(info.URL) {
		return fmt.Errorf("browser: redirected to %s: %w", info.URL, outreach.ErrSessionLost)
	}
	return nil
}

// IsLoginWall reports whether rawURL is one of the pages an
// unauthenticated session lands on.
func IsLoginWall(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, p := range []string{"/login", "/checkpoint", "/authwall", "/uas/login"} {
		if u.Path == p || strings.HasPrefix(u.Path, p+"/") {
			return true
		}
	}
	return false
}

// isWaitTimeout reports whether err means an element never appeared.
func isWaitTimeout(err error) bool {
	var nf *rod.ElementNotFoundError
	return errors.Is(err, context.DeadlineExceeded) || errors.As(err, &nf)
}

// waitErr classifies a failed wait. A done parent context wins; a wait
// timeout becomes kind; anything else is returned wrapped as is.
// errKeyTimeout marks key input that did not complete within the field timeout.
var errKeyTimeout = errors.New("key input timed out")

func waitErr(parent context.Context, what string, err, kind error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if isWaitTimeout(err) {
		return fmt.Errorf("browser: %s: %w (%v)", what, kind, err)
	}
	return fmt.Errorf("browser: %s: %w", what, err)
}
