package world

import "testing"

func TestSessionCacheMissWithoutReuse(t *testing.T) {
	c := &sessionCache{}
	c.put(newHandle())
	if _, ok := c.get(false); ok {
		t.Fatal("expected no cached handle when reuse_session is false")
	}
}

func TestSessionCacheHitWithReuse(t *testing.T) {
	c := &sessionCache{}
	h := newHandle()
	c.put(h)
	got, ok := c.get(true)
	if !ok {
		t.Fatal("expected cached handle")
	}
	if got.ID != h.ID {
		t.Fatalf("got %s, want %s", got.ID, h.ID)
	}
}

func TestSessionCacheEmptyBeforeAnyPut(t *testing.T) {
	c := &sessionCache{}
	if _, ok := c.get(true); ok {
		t.Fatal("expected empty cache to miss")
	}
}
