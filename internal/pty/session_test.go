package pty

import (
	"errors"
	"os/exec"
	"sync"
	"testing"
)

// fakeConn is a Conn test double driven by a fixed queue of ClientFrames.
// Once the queue is exhausted it returns readErr (default io.EOF-shaped).
type fakeConn struct {
	mu      sync.Mutex
	in      []ClientFrame
	idx     int
	readErr error

	out    []ServerFrame
	closed bool
}

func (c *fakeConn) ReadJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.in) {
		if c.readErr != nil {
			return c.readErr
		}
		return errors.New("fakeConn: no more frames queued")
	}
	f := c.in[c.idx]
	c.idx++
	*(v.(*ClientFrame)) = f
	return nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := v.(ServerFrame); ok {
		c.out = append(c.out, f)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRunClosesWithErrorWhenFirstFrameReadFails(t *testing.T) {
	conn := &fakeConn{readErr: errors.New("socket gone")}
	s := New(conn)

	if err := s.Run(); err != nil {
		t.Fatalf("Run should never return a non-nil error, got %v", err)
	}
	if s.State() != StateErrored {
		t.Fatalf("expected StateErrored, got %v", s.State())
	}
	if len(conn.out) != 1 || conn.out[0].Type != ServerError {
		t.Fatalf("expected a single error frame, got %+v", conn.out)
	}
	if !conn.closed {
		t.Fatal("expected connection to be closed")
	}
}

func TestRunClosesWithErrorWhenFirstFrameIsNotStart(t *testing.T) {
	conn := &fakeConn{in: []ClientFrame{{Type: ClientInput, DataB64: "aGk="}}}
	s := New(conn)

	if err := s.Run(); err != nil {
		t.Fatalf("Run should never return a non-nil error, got %v", err)
	}
	if s.State() != StateErrored {
		t.Fatalf("expected StateErrored, got %v", s.State())
	}
	if len(conn.out) != 1 || conn.out[0].Type != ServerError {
		t.Fatalf("expected a single error frame, got %+v", conn.out)
	}
}

func TestCloseWithErrorSetsStateAndWritesMessage(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)

	if err := s.closeWithError("kaboom"); err != nil {
		t.Fatalf("closeWithError returned %v", err)
	}
	if s.State() != StateErrored {
		t.Fatalf("expected StateErrored, got %v", s.State())
	}
	if len(conn.out) != 1 || conn.out[0].Message != "kaboom" {
		t.Fatalf("expected error frame with message, got %+v", conn.out)
	}
	if !conn.closed {
		t.Fatal("expected connection to be closed")
	}
}

func TestCloseWithExitSetsStateAndWritesCode(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)

	if err := s.closeWithExit(7); err != nil {
		t.Fatalf("closeWithExit returned %v", err)
	}
	if s.State() != StateExited {
		t.Fatalf("expected StateExited, got %v", s.State())
	}
	if len(conn.out) != 1 || conn.out[0].Type != ServerExit || conn.out[0].Code != 7 {
		t.Fatalf("expected exit frame with code 7, got %+v", conn.out)
	}
}

func TestCloseWithExitPreservesZeroCode(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)

	_ = s.closeWithExit(0)
	if len(conn.out) != 1 || conn.out[0].Code != 0 {
		t.Fatalf("expected exit frame with code 0, got %+v", conn.out)
	}
}

func TestExitCodeOfNilIsZero(t *testing.T) {
	if got := exitCodeOf(nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestExitCodeOfExitErrorReturnsRealCode(t *testing.T) {
	cmd := exec.Command(hostShell(), hostShellFlag(), "exit 3")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected command to exit nonzero")
	}
	if got := exitCodeOf(err); got != 3 {
		t.Fatalf("expected exit code 3, got %d", got)
	}
}

func TestExitCodeOfNonExitErrorIsNegativeOne(t *testing.T) {
	if got := exitCodeOf(errors.New("not an exec error")); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestFlattenEnvEmptyIsNil(t *testing.T) {
	if got := flattenEnv(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := flattenEnv(map[string]string{}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestFlattenEnvFormatsKeyValuePairs(t *testing.T) {
	got := flattenEnv(map[string]string{"FOO": "bar"})
	if len(got) != 1 || got[0] != "FOO=bar" {
		t.Fatalf("expected [FOO=bar], got %v", got)
	}
}

func TestNewSessionStartsIdle(t *testing.T) {
	s := New(&fakeConn{})
	if s.State() != StateIdle {
		t.Fatalf("expected StateIdle, got %v", s.State())
	}
}
