// Package db persists calibration readings and runs in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/flowcal/internal/monitoring"
	"github.com/banshee-data/flowcal/internal/retry"
	"github.com/banshee-data/flowcal/internal/timeutil"
)

// ErrConnectExhausted is returned by Connect when every attempt failed.
var ErrConnectExhausted = errors.New("database connection attempts exhausted")

var logf = monitoring.Tagged("db")

type DB struct {
	*sql.DB
}

// dsn builds a modernc.org/sqlite DSN with the pragmas every connection
// in the pool needs.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

// OpenDB opens and pings the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// NewDB opens the database and brings its schema up to date.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens the database under the given retry policy and ensures the
// schema. Exhausting the policy returns an error wrapping
// ErrConnectExhausted and the last failure.
func Connect(ctx context.Context, path string, policy retry.Policy, clock timeutil.Clock) (*DB, error) {
	var db *DB
	err := retry.Do(ctx, policy, clock, func(attempt int) error {
		var err error
		db, err = NewDB(path)
		if err != nil {
			logf("connect attempt %d/%d failed: %v", attempt, policy.MaxAttempts, err)
			return err
		}
		logf("connected to %s", path)
		return nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return nil, fmt.Errorf("%w: %w", ErrConnectExhausted, err)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies every pending migration.
func (db *DB) EnsureSchema() error {
	return db.MigrateUp()
}

const storageLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(storageLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(storageLayout, s, time.UTC)
}
