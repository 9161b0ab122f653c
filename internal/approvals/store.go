// Package approvals implements Substrate's approval cache: a mapping from
// command pattern to {status, expires_at}, with Once/Session entries kept
// in memory and Always entries persisted to SQLite so they survive a
// broker restart. The SQLite schema and WAL-mode open string are adapted
// from the teacher's offline event queue.
package approvals

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/substrate-dev/substrate/internal/globmatch"
)

// Status is the cached verdict for a command pattern.
type Status string

const (
	Approved Status = "approved"
	Denied   Status = "denied"
	Unknown  Status = "unknown"
)

// Scope controls how long an approval lives.
type Scope string

const (
	ScopeOnce    Scope = "once"
	ScopeSession Scope = "session"
	ScopeAlways  Scope = "always"
)

type entry struct {
	pattern   string
	status    Status
	expiresAt *time.Time // nil means never expires (Always)
}

func (e entry) expired(now time.Time) bool {
	return e.expiresAt != nil && now.After(*e.expiresAt)
}

// Cache is the in-process approval cache, optionally backed by a durable
// SQLite store for Always-scope entries.
type Cache struct {
	mu      sync.RWMutex
	exact   map[string]*entry
	pattern []*entry // insertion order, for deterministic first-match scan
	db      *sql.DB
}

// New returns an in-memory-only cache (no Always-scope persistence).
func New() *Cache {
	return &Cache{exact: make(map[string]*entry)}
}

// Open returns a cache backed by a SQLite store at dbPath for Always-scope
// entries, loading any previously persisted entries immediately.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("approvals: opening %s: %w", dbPath, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS approvals (
			pattern TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("approvals: creating table: %w", err)
	}

	c := &Cache{exact: make(map[string]*entry), db: db}
	if err := c.loadPersisted(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) loadPersisted() error {
	rows, err := c.db.Query("SELECT pattern, status FROM approvals")
	if err != nil {
		return fmt.Errorf("approvals: loading persisted entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pattern, status string
		if err := rows.Scan(&pattern, &status); err != nil {
			continue
		}
		e := &entry{pattern: pattern, status: Status(status)}
		c.insertLocked(e)
	}
	return rows.Err()
}

// insertLocked must be called with c.mu held (or during single-threaded
// construction, before the Cache is shared).
func (c *Cache) insertLocked(e *entry) {
	c.exact[e.pattern] = e
	if containsWildcard(e.pattern) {
		c.pattern = append(c.pattern, e)
	}
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' || r == '?' {
			return true
		}
	}
	return false
}

// Check looks up cmd: exact match first, then a pattern scan in insertion
// order; expired entries are treated as Unknown. An expired exact entry is
// dropped here; expired pattern entries are skipped and left for
// ClearExpired.
func (c *Cache) Check(cmd string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if e, ok := c.exact[cmd]; ok {
		if e.expired(now) {
			delete(c.exact, cmd)
			return Unknown
		}
		return e.status
	}

	for _, e := range c.pattern {
		if e.expired(now) {
			continue
		}
		if globmatch.Match(e.pattern, cmd) {
			return e.status
		}
	}
	return Unknown
}

// Add records a decision for pattern under the given scope. Always-scope
// approvals are persisted to the durable store, if one was opened.
func (c *Cache) Add(pattern string, status Status, scope Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt *time.Time
	now := time.Now()
	switch scope {
	case ScopeOnce:
		t := now
		expiresAt = &t
	case ScopeSession:
		t := now.Add(time.Hour)
		expiresAt = &t
	case ScopeAlways:
		expiresAt = nil
	}

	e := &entry{pattern: pattern, status: status, expiresAt: expiresAt}
	// Replace any existing entry for the same exact pattern key.
	if old, ok := c.exact[pattern]; ok {
		c.removePatternEntryLocked(old)
	}
	c.exact[pattern] = e
	if containsWildcard(pattern) {
		c.pattern = append(c.pattern, e)
	}

	if scope == ScopeAlways && c.db != nil {
		if _, err := c.db.Exec(
			`INSERT INTO approvals (pattern, status) VALUES (?, ?)
			 ON CONFLICT(pattern) DO UPDATE SET status=excluded.status`,
			pattern, string(status),
		); err != nil {
			return fmt.Errorf("approvals: persisting %s: %w", pattern, err)
		}
	}
	return nil
}

func (c *Cache) removePatternEntryLocked(old *entry) {
	for i, e := range c.pattern {
		if e == old {
			c.pattern = append(c.pattern[:i], c.pattern[i+1:]...)
			return
		}
	}
}

// ClearExpired removes any entry (exact or pattern) whose expiry has
// passed. Check does not call it; it is the explicit sweep.
func (c *Cache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.exact {
		if e.expired(now) {
			delete(c.exact, k)
		}
	}
	kept := c.pattern[:0]
	for _, e := range c.pattern {
		if !e.expired(now) {
			kept = append(kept, e)
		}
	}
	c.pattern = kept
}

// Close releases the durable store, if any.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
