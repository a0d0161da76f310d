// Package collector builds one run's candidate set: it expands the
// connections listing until nothing more loads, extracts every profile
// link, drops profiles already excluded and shuffles the rest.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"

	"github.com/hazyhaar/reachout/exclusion"
)

// Listing is a scrollable, expandable list of connections.
type Listing interface {
	// LoadMore scrolls to the bottom and triggers the load-more affordance.
	// It reports false when the affordance is absent, meaning the listing
	// is fully expanded.
	LoadMore(ctx context.Context) (bool, error)
	// HTML returns a snapshot of the listing document.
	HTML(ctx context.Context) (string, error)
}

// Exclusions is the read side of the exclusion store.
type Exclusions interface {
	Contains(ref exclusion.ProfileRef) bool
}

// Config configures a Collector.
type Config struct {
	// Selector matches the profile links inside the listing.
	// Default: "li.mn-connection-card a.mn-connection-card__link".
	Selector string
	// Attr holds the profile identifier on matched nodes. Default: "href".
	Attr string
	// BaseURL resolves relative links. Default: "https://www.linkedin.com".
	BaseURL string
	// MaxExpansions bounds LoadMore calls. Default: 500.
	MaxExpansions int
	// Rand drives the shuffle. Nil uses the auto-seeded global source.
	Rand *rand.Rand

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Selector == "" {
		c.Selector = "li.mn-connection-card a.mn-connection-card__link"
	}
	if c.Attr == "" {
		c.Attr = "href"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://www.linkedin.com"
	}
	if c.MaxExpansions <= 0 {
		c.MaxExpansions = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Collector gathers candidates from a Listing.
type Collector struct {
	cfg  Config
	base *url.URL
	ex   Exclusions
}

// New creates a Collector filtering against ex, which must already be loaded.
func New(ex Exclusions, cfg Config) (*Collector, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("collector: base url: %w", err)
	}
	return &Collector{cfg: cfg, base: base, ex: ex}, nil
}

// Collect expands l, extracts every profile and returns the ones not yet
// excluded, in random order.
func (c *Collector) Collect(ctx context.Context, l Listing) ([]exclusion.ProfileRef, error) {
	log := c.cfg.Logger

	if err := c.expand(ctx, l); err != nil {
		return nil, err
	}

	doc, err := l.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: snapshot listing: %w", err)
	}

	all, err := Extract(doc, c.cfg.Selector, c.cfg.Attr, c.base)
	if err != nil {
		return nil, err
	}
	log.Info("collector: profiles found", "count", len(all))

	filtered := Filter(all, c.ex)
	log.Info("collector: profiles after exclusion", "count", len(filtered))

	Shuffle(filtered, c.cfg.Rand)
	return filtered, nil
}

func (c *Collector) expand(ctx context.Context, l Listing) error {
	for i := 0; i < c.cfg.MaxExpansions; i++ {
		more, err := l.LoadMore(ctx)
		if err != nil {
			return fmt.Errorf("collector: load more: %w", err)
		}
		if !more {
			c.cfg.Logger.Debug("collector: listing fully expanded", "expansions", i)
			return nil
		}
	}
	c.cfg.Logger.Warn("collector: expansion limit reached, using loaded profiles",
		"max_expansions", c.cfg.MaxExpansions)
	return nil
}

// Filter returns refs not contained in ex, preserving order.
func Filter(refs []exclusion.ProfileRef, ex Exclusions) []exclusion.ProfileRef {
	out := make([]exclusion.ProfileRef, 0, len(refs))
	for _, r := range refs {
		if !ex.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// Shuffle applies a uniform random permutation in place.
func Shuffle(refs []exclusion.ProfileRef, r *rand.Rand) {
	swap := func(i, j int) { refs[i], refs[j] = refs[j], refs[i] }
	if r == nil {
		rand.Shuffle(len(refs), swap)
		return
	}
	r.Shuffle(len(refs), swap)
}
