package world

import (
	"sync"

	"github.com/google/uuid"
)

// sessionCache backs the "reuse_session" flag in Spec: one cached handle
// per backend instance, guarded by a mutex the way the teacher's WSL
// connector guards its single cached session with Mutex<Option<Handle>>.
type sessionCache struct {
	mu     sync.Mutex
	handle *Handle
}

func (c *sessionCache) get(reuse bool) (Handle, bool) {
	if !reuse {
		return Handle{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return Handle{}, false
	}
	return *c.handle, true
}

func (c *sessionCache) put(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = &h
}

func newHandle() Handle {
	return Handle{ID: uuid.NewString()}
}
