// CLAUDE:SUMMARY Busy-retry policy for exclusion and journal writes: typed SQLITE_BUSY/LOCKED detection, linear backoff, ctx-bounded waits.
package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Retry bounds how a write is retried while another connection holds the
// database lock. busy_timeout already absorbs short waits inside SQLite;
// Retry covers the BUSY that escapes it (WAL checkpoints, a journal reader
// upgrading to a writer).
type Retry struct {
	// Attempts is the total number of tries. Default: 4.
	Attempts int
	// Step is the linear wait unit: try n+1 starts n×Step after try n
	// failed. Default: 50ms.
	Step time.Duration
}

// DefaultRetry is the policy used by Exec and RunTx.
var DefaultRetry = Retry{Attempts: 4, Step: 50 * time.Millisecond}

func (r Retry) norm() Retry {
	if r.Attempts <= 0 {
		r.Attempts = DefaultRetry.Attempts
	}
	if r.Step <= 0 {
		r.Step = DefaultRetry.Step
	}
	return r
}

// IsBusy reports whether err is an SQLite BUSY or LOCKED condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	// Errors that crossed a string boundary (fmt.Errorf("%v"), other drivers).
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Do calls fn until it succeeds, fails with a non-busy error, or the
// attempts run out. Non-busy errors are returned unchanged. A busy error
// on the last attempt is wrapped with op. Waits between attempts end early
// when ctx is done.
func (r Retry) Do(ctx context.Context, op string, fn func() error) error {
	r = r.norm()
	var err error
	for n := 1; ; n++ {
		err = fn()
		if !IsBusy(err) {
			return err
		}
		if n == r.Attempts {
			break
		}
		if werr := sleepCtx(ctx, time.Duration(n)*r.Step); werr != nil {
			return fmt.Errorf("dbopen: %s: %w (while busy: %v)", op, werr, err)
		}
	}
	return fmt.Errorf("dbopen: %s: busy after %d attempts: %w", op, r.Attempts, err)
}

// Exec runs one statement under r.
func (r Retry) Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := r.Do(ctx, "exec", func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunTx runs fn in a transaction under r. A failed attempt is rolled back
// before the next one starts, so fn must be safe to repeat.
func (r Retry) RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return r.Do(ctx, "tx", func() error { return runOnce(ctx, db, fn) })
}

// Exec runs one statement under DefaultRetry.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return DefaultRetry.Exec(ctx, db, query, args...)
}

// RunTx runs fn in a transaction under DefaultRetry.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return DefaultRetry.RunTx(ctx, db, fn)
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
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
