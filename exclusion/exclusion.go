// CLAUDE:SUMMARY Persistent set of already-contacted profiles; file log and SQLite backends behind one Store interface.
// Package exclusion records which profiles have already been processed so
// that no profile is ever contacted twice across runs.
//
// The exclusion set is loaded once at run start, consulted by the collector
// and the orchestrator, and appended to synchronously each time a profile
// reaches a terminal state. An append returns only after the identifier is
// durably recorded.
package exclusion

import (
	"context"
	"errors"
	"strings"
)

// ProfileRef is the stable identifier of one connection's profile (its
// profile URL). Identity is by value equality.
type ProfileRef string

// Normalize trims surrounding whitespace. Empty results are not valid refs.
func Normalize(raw string) ProfileRef {
	return ProfileRef(strings.TrimSpace(raw))
}

// ErrUnreadable is returned by Load when the backing store cannot be read.
// Callers must not run outreach with an unknown exclusion state.
var ErrUnreadable = errors.New("exclusion: store unreadable")

// Store is the persistent exclusion set.
type Store interface {
	// Load reads the backing store and replaces the in-memory snapshot.
	Load(ctx context.Context) (Set, error)
	// Contains reports whether ref is in the loaded snapshot or was
	// appended since. Before Load it reports false.
	Contains(ref ProfileRef) bool
	// Append durably records ref. Appending a ref already present is a no-op.
	Append(ctx context.Context, ref ProfileRef) error
	// Remove deletes ref from the store. Not used by a normal run.
	Remove(ctx context.Context, ref ProfileRef) error
	Close() error
}

// Set is an in-memory exclusion set.
type Set map[ProfileRef]struct{}

// NewSet builds a Set from refs, ignoring empty ones.
func NewSet(refs ...ProfileRef) Set {
	s := make(Set, len(refs))
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Has reports whether ref is in the set. A nil set contains nothing.
func (s Set) Has(ref ProfileRef) bool {
	_, ok := s[ref]
	return ok
}

// Contains is Has; it lets a snapshot stand in wherever only reads are needed.
func (s Set) Contains(ref ProfileRef) bool { return s.Has(ref) }

// Add inserts ref and reports whether it was newly added.
func (s Set) Add(ref ProfileRef) bool {
	if ref == "" || s.Has(ref) {
		return false
	}
	s[ref] = struct{}{}
	return true
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for r := range s {
		c[r] = struct{}{}
	}
	return c
}

// Import appends every ref of src into dst and returns how many were
// newly recorded in dst. Used to migrate a file log into SQLite.
func Import(ctx context.Context, src, dst Store) (int, error) {
	refs, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := dst.Load(ctx); err != nil {
		return 0, err
	}
	n := 0
	for ref := range refs {
		if dst.Contains(ref) {
			continue
		}
		if err := dst.Append(ctx, ref); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
