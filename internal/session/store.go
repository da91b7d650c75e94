// Package session persists session metadata, search history, memories
// and quota counters behind an embedded, write-ahead-logged SQL store.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/standardbeagle/logsearch-mcp/internal/errors"
)

// DefaultIdleTTL reaps a session once it has been idle this long.
const DefaultIdleTTL = 24 * time.Hour

// busyRetries and busyBackoffCap implement a capped exponential
// backoff for write contention beyond SQLite's own busy_timeout.
const (
	busyRetries    = 5
	busyBackoffCap = 100 * time.Millisecond
)

// Session is the durable, in-memory view of one session row.
type Session struct {
	ID                string
	CreatedAt         time.Time
	LastActiveAt      time.Time
	BytesScannedTotal int64
	FallbackZone      string
}

// HistoryEntry is one row of session_history.
type HistoryEntry struct {
	SessionID    string
	QueryJSON    string
	ExecutedAt   time.Time
	HitsReturned int
	TimedOut     bool
}

// Store wraps the session database. A sync.Map of per-session mutexes
// serializes writers within a session while leaving unrelated sessions
// free to proceed concurrently.
type Store struct {
	db    *sql.DB
	locks sync.Map // map[string]*sync.Mutex
	quota int64    // bytes_scanned_total quota per session; 0 = unlimited
	idle  time.Duration
}

// Config tunes a Store.
type Config struct {
	Path         string
	QuotaBytes   int64
	IdleTTL      time.Duration
}

// Open creates or reuses the session database at cfg.Path, applying
// the WAL + busy_timeout DSN pattern and running the forward-only
// migration.
func Open(cfg Config) (*Store, error) {
	if cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("session: mkdir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = DefaultIdleTTL
	}

	s := &Store{db: db, quota: cfg.QuotaBytes, idle: idle}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL,
			bytes_scanned_total INTEGER NOT NULL DEFAULT 0,
			fallback_zone TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS session_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			query_json TEXT NOT NULL,
			executed_at INTEGER NOT NULL,
			hits_returned INTEGER NOT NULL,
			timed_out INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_history_session ON session_history(session_id, executed_at);`,
		`CREATE TABLE IF NOT EXISTS session_memories (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (session_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS session_files (
			session_id TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (session_id, path)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("session: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// withRetry runs fn, retrying on SQLITE_BUSY-shaped contention with
// capped exponential backoff.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusyErr(err) {
			return err
		}
		backoff := time.Duration(1<<attempt) * 5 * time.Millisecond
		if backoff > busyBackoffCap {
			backoff = busyBackoffCap
		}
		backoff += time.Duration(rand.Intn(5)) * time.Millisecond
		time.Sleep(backoff)
	}
	return err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

// Create inserts a new session row, generating an id when sessionID is
// empty.
func (s *Store) Create(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	sess := Session{ID: sessionID, CreatedAt: now, LastActiveAt: now}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at, last_active_at, bytes_scanned_total, fallback_zone)
			VALUES (?, ?, ?, 0, '')
			ON CONFLICT(id) DO UPDATE SET last_active_at = excluded.last_active_at`,
			sessionID, now.Unix(), now.Unix())
		return err
	})
	if err != nil {
		return Session{}, errors.New(errors.KindInternal, "session.create", err)
	}
	return sess, nil
}

// Get fetches a session row, or (Session{}, false) if it doesn't
// exist.
func (s *Store) Get(ctx context.Context, sessionID string) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, last_active_at, bytes_scanned_total, fallback_zone
		FROM sessions WHERE id = ?`, sessionID)

	var sess Session
	var createdAt, lastActiveAt int64
	if err := row.Scan(&sess.ID, &createdAt, &lastActiveAt, &sess.BytesScannedTotal, &sess.FallbackZone); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, false, nil
		}
		return Session{}, false, errors.New(errors.KindInternal, "session.get", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastActiveAt = time.Unix(lastActiveAt, 0)
	return sess, true, nil
}

// Exists implements search.SessionAccessor.
func (s *Store) Exists(ctx context.Context, sessionID string) bool {
	_, ok, err := s.Get(ctx, sessionID)
	return err == nil && ok
}

// ReserveBytes implements search.SessionAccessor's quota check:
// rejects a query whose projected read would push the session's
// running byte total past its quota.
func (s *Store) ReserveBytes(ctx context.Context, sessionID string, projected int64) error {
	if s.quota <= 0 {
		return nil
	}
	sess, ok, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil // unknown session: Create has not been called yet, nothing to enforce
	}
	if sess.BytesScannedTotal+projected > s.quota {
		return errors.New(errors.KindQuotaExceeded, "session.reserve_bytes", nil)
	}
	return nil
}

// AddBytesScanned adds n to the session's running total, monotonic
// within the session.
func (s *Store) AddBytesScanned(ctx context.Context, sessionID string, n int64) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().Unix()
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET bytes_scanned_total = bytes_scanned_total + ?, last_active_at = ?
			WHERE id = ?`, n, now, sessionID)
		return err
	})
}

// AppendHistory records one executed query against the session.
func (s *Store) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	lock := s.lockFor(entry.SessionID)
	lock.Lock()
	defer lock.Unlock()

	timedOut := 0
	if entry.TimedOut {
		timedOut = 1
	}
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_history (session_id, query_json, executed_at, hits_returned, timed_out)
			VALUES (?, ?, ?, ?, ?)`,
			entry.SessionID, entry.QueryJSON, entry.ExecutedAt.Unix(), entry.HitsReturned, timedOut)
		return err
	})
}

// SetMemory upserts one key/value pair for the session.
func (s *Store) SetMemory(ctx context.Context, sessionID, key, value string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_memories (session_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value`,
			sessionID, key, value)
		return err
	})
}

// RemoveMemory deletes one key for the session, if present.
func (s *Store) RemoveMemory(ctx context.Context, sessionID, key string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM session_memories WHERE session_id = ? AND key = ?`, sessionID, key)
		return err
	})
}

// Memories returns all key/value pairs stored for the session.
func (s *Store) Memories(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_memories WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "session.memories", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.New(errors.KindInternal, "session.memories", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ReapExpired deletes sessions (and their history/memories) idle past
// the configured TTL, returning how many were removed.
func (s *Store) ReapExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.idle).Unix()

	var ids []string
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return 0, errors.New(errors.KindInternal, "session.reap_expired", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errors.New(errors.KindInternal, "session.reap_expired", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		lock := s.lockFor(id)
		lock.Lock()
		err := withRetry(func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			for _, stmt := range []string{
				`DELETE FROM session_history WHERE session_id = ?`,
				`DELETE FROM session_memories WHERE session_id = ?`,
				`DELETE FROM session_files WHERE session_id = ?`,
				`DELETE FROM sessions WHERE id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					tx.Rollback()
					return err
				}
			}
			return tx.Commit()
		})
		lock.Unlock()
		if err != nil {
			return len(ids), errors.New(errors.KindInternal, "session.reap_expired", err)
		}
		s.locks.Delete(id)
	}
	return len(ids), nil
}
