package approvals

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCheckUnknownByDefault(t *testing.T) {
	c := New()
	if s := c.Check("npm install"); s != Unknown {
		t.Fatalf("expected unknown, got %s", s)
	}
}

func TestExactMatchPreferredOverPattern(t *testing.T) {
	c := New()
	if err := c.Add("npm *", Denied, ScopeAlways); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add("npm install left-pad", Approved, ScopeAlways); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if s := c.Check("npm install left-pad"); s != Approved {
		t.Fatalf("expected exact match to win, got %s", s)
	}
	if s := c.Check("npm install other"); s != Denied {
		t.Fatalf("expected pattern match for non-exact command, got %s", s)
	}
}

func TestOnceExpiresImmediately(t *testing.T) {
	c := New()
	if err := c.Add("git status", Approved, ScopeOnce); err != nil {
		t.Fatalf("Add: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if s := c.Check("git status"); s != Unknown {
		t.Fatalf("expected once-scoped approval to have expired, got %s", s)
	}
}

func TestSessionScopeValidForAnHour(t *testing.T) {
	c := New()
	if err := c.Add("git status", Approved, ScopeSession); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s := c.Check("git status"); s != Approved {
		t.Fatalf("expected session-scoped approval to still be valid, got %s", s)
	}
}

func TestAlwaysScopePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "approvals.db")

	c1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c1.Add("git *", Approved, ScopeAlways); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if s := c2.Check("git status"); s != Approved {
		t.Fatalf("expected always-scope approval to survive reopen, got %s", s)
	}
}

func TestClearExpiredRemovesStaleEntries(t *testing.T) {
	c := New()
	if err := c.Add("git status", Approved, ScopeOnce); err != nil {
		t.Fatalf("Add: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	c.ClearExpired()
	if len(c.exact) != 0 {
		t.Fatalf("expected expired entry to be removed, exact map has %d entries", len(c.exact))
	}
}
