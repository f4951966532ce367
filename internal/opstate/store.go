// Package opstate provides a namespaced key-value store for persistent
// operational state: last-login marks, exclusion lists, provider
// preferences, OAuth tokens and notification bookkeeping. Values are
// opaque strings; JSON helpers cover the structured cases.
package opstate

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a namespaced key-value store backed by SQLite. All public
// methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the state database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS state (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Get returns the stored value, or "" with a nil error when the key is
// absent.
func (s *Store) Get(namespace, key string) (string, error) {
	return get(s.db, namespace, key)
}

// Set upserts a value and refreshes its updated_at stamp.
func (s *Store) Set(namespace, key, value string) error {
	return s.set(s.db, namespace, key, value)
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(namespace, key string) error {
	if _, err := s.db.Exec(
		`DELETE FROM state WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns every key/value pair in a namespace. The map is never nil.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM state WHERE namespace = ? ORDER BY key`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetJSON decodes the stored value into v. It reports false when the
// key is absent, leaving v untouched.
func (s *Store) GetJSON(namespace, key string, v any) (bool, error) {
	raw, err := s.Get(namespace, key)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it.
func (s *Store) SetJSON(namespace, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	return s.Set(namespace, key, string(b))
}

// Update runs a read-modify-write of one key inside a transaction.
// fn receives the current value ("" when absent) and returns the value
// to store. Returning ErrNoChange leaves the row untouched and makes
// Update return nil.
func (s *Store) Update(namespace, key string, fn func(current string) (string, error)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s/%s: %w", namespace, key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := get(tx, namespace, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.set(tx, namespace, key, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", namespace, key, err)
	}
	return nil
}

// ErrNoChange is returned by an Update callback to skip the write.
var ErrNoChange = errors.New("opstate: no change")

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

func get(q querier, namespace, key string) (string, error) {
	var value string
	err := q.QueryRow(
		`SELECT value FROM state WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (s *Store) set(q querier, namespace, key, value string) error {
	_, err := q.Exec(
		`INSERT INTO state (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}
