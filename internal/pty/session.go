// Package pty implements Substrate's PTY-over-WebSocket surface: a
// session state machine (Idle -> Starting -> Running -> Exited|Errored)
// fronting a real pseudo-terminal opened with github.com/creack/pty,
// matching the read-loop-plus-Wait-goroutine shape used for PTY-backed
// command runners elsewhere in the pack.
package pty

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// State is one of the PTY session's lifecycle states.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateErrored  State = "errored"
)

// Conn is the minimal WebSocket surface a Session needs; satisfied by
// *gorilla/websocket.Conn in production and a fake in tests.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Session drives one PTY-backed command for the lifetime of one
// WebSocket connection. Not reused across connections.
type Session struct {
	conn Conn

	mu    sync.Mutex
	state State

	cmd  *exec.Cmd
	ptmx *os.File
}

// New constructs a Session bound to conn, starting in StateIdle.
func New(conn Conn) *Session {
	return &Session{conn: conn, state: StateIdle}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the session to completion: reads the mandatory first
// "start" frame, launches the command under a pty, then alternates
// between forwarding client frames and pty output until a terminal frame
// is sent. Always returns nil — any fatal condition is communicated to
// the client as an "error" or "exit" frame before Run returns.
func (s *Session) Run() error {
	s.setState(StateStarting)

	first, err := s.readClientFrame()
	if err != nil {
		return s.closeWithError(fmt.Sprintf("reading start frame: %v", err))
	}
	if first.Type != ClientStart {
		return s.closeWithError(fmt.Sprintf("first frame must be %q, got %q", ClientStart, first.Type))
	}

	if err := s.start(first); err != nil {
		return s.closeWithError(fmt.Sprintf("starting command: %v", err))
	}
	s.setState(StateRunning)

	outputDone := make(chan struct{})
	go s.pumpOutput(outputDone)

	exitCh := make(chan error, 1)
	go func() { exitCh <- s.cmd.Wait() }()

	inputErr := make(chan error, 1)
	go s.pumpInput(inputErr)

	select {
	case werr := <-exitCh:
		s.ptmx.Close()
		<-outputDone
		return s.closeWithExit(exitCodeOf(werr))
	case err := <-inputErr:
		if err == nil {
			// client closed the socket cleanly before the command exited;
			// let the command keep running detached from this session.
			return nil
		}
		return s.closeWithError(fmt.Sprintf("reading client frame: %v", err))
	}
}

func (s *Session) readClientFrame() (ClientFrame, error) {
	var f ClientFrame
	err := s.conn.ReadJSON(&f)
	return f, err
}

func (s *Session) start(frame ClientFrame) error {
	cmd := exec.Command(hostShell(), hostShellFlag(), frame.Cmd)
	cmd.Dir = frame.Cwd
	cmd.Env = flattenEnv(frame.Env)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	s.cmd = cmd
	s.ptmx = ptmx

	if frame.Cols > 0 && frame.Rows > 0 {
		_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(frame.Cols), Rows: uint16(frame.Rows)})
	}
	return nil
}

func (s *Session) pumpOutput(done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			_ = s.conn.WriteJSON(ServerFrame{Type: ServerStdout, DataB64: base64.StdEncoding.EncodeToString(buf[:n])})
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) pumpInput(errCh chan error) {
	for {
		frame, err := s.readClientFrame()
		if err != nil {
			errCh <- err
			return
		}
		switch frame.Type {
		case ClientInput:
			data, err := base64.StdEncoding.DecodeString(frame.DataB64)
			if err != nil {
				continue
			}
			_, _ = s.ptmx.Write(data)
		case ClientResize:
			_ = pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(frame.Cols), Rows: uint16(frame.Rows)})
		case ClientSignal:
			_ = sendSignal(s.cmd, frame.Name)
		default:
			// a second "start" or anything unrecognised is simply ignored
			// once the session is already Running: only the first frame is
			// position-sensitive per the session's contract.
		}
	}
}

func (s *Session) closeWithError(msg string) error {
	s.setState(StateErrored)
	_ = s.conn.WriteJSON(ServerFrame{Type: ServerError, Message: msg})
	_ = s.conn.Close()
	return nil
}

func (s *Session) closeWithExit(code int) error {
	s.setState(StateExited)
	_ = s.conn.WriteJSON(ServerFrame{Type: ServerExit, Code: code})
	_ = s.conn.Close()
	return nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
