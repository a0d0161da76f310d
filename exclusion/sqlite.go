package exclusion

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/reachout/dbopen"
)

// Schema for the excluded_profiles table.
const Schema = `
CREATE TABLE IF NOT EXISTS excluded_profiles (
	ref         TEXT PRIMARY KEY,
	excluded_at INTEGER NOT NULL
);
`

// SQLiteStore keeps the exclusion set in an SQLite table. Each Append is a
// committed INSERT OR IGNORE; open the database with synchronous=FULL for
// power-loss durability (OpenSQLite does).
type SQLiteStore struct {
	db    *sql.DB
	owned bool
	now   func() time.Time

	mu  sync.Mutex
	set Set
}

// OpenSQLite opens the database at path and applies the schema.
// The caller must blank-import modernc.org/sqlite.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSynchronous("FULL"),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("exclusion: %w", err)
	}
	s := NewSQLiteStore(db)
	s.owned = true
	return s, nil
}

// NewSQLiteStore wraps an already-open database. The schema must have been
// applied (see Init). Close does not close a borrowed db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now, set: make(Set)}
}

// Init applies the excluded_profiles schema.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("exclusion: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ref FROM excluded_profiles`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rows.Close()

	set := make(Set)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		set.Add(Normalize(ref))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return set.Clone(), nil
}

func (s *SQLiteStore) Contains(ref ProfileRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Has(ref)
}

func (s *SQLiteStore) Append(ctx context.Context, ref ProfileRef) error {
	if ref == "" {
		return fmt.Errorf("exclusion: append: empty ref")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set.Has(ref) {
		return nil
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR IGNORE INTO excluded_profiles (ref, excluded_at) VALUES (?, ?)`,
		string(ref), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("exclusion: append %s: %w", ref, err)
	}
	s.set.Add(ref)
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, ref ProfileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM excluded_profiles WHERE ref = ?`, string(ref)); err != nil {
		return fmt.Errorf("exclusion: remove %s: %w", ref, err)
	}
	delete(s.set, ref)
	return nil
}

// ExcludedAt returns when ref was recorded, or false if it is not present.
func (s *SQLiteStore) ExcludedAt(ctx context.Context, ref ProfileRef) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT excluded_at FROM excluded_profiles WHERE ref = ?`, string(ref)).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("exclusion: excluded_at %s: %w", ref, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
