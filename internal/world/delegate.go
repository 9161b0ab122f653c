package world

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/substrate-dev/substrate/internal/trace"
	"github.com/substrate-dev/substrate/internal/transport"
)

// delegatingBackend implements Backend by forwarding every call over an
// Agent API connector to a world-agent already running somewhere else (a
// Lima VM on macOS, a WSL distro on Windows). The local process never
// applies isolation itself on these platforms — it just proxies, using
// the same transport.Connector abstraction the Agent API's own HTTP
// client code would use to reach a remote world-agent.
type delegatingBackend struct {
	conn  transport.Connector
	t     transport.Transport
	warm  func(ctx context.Context) error
	cache sessionCache
}

func newDelegatingBackend(t transport.Transport, warm func(ctx context.Context) error) *delegatingBackend {
	conn, err := transport.NewConnector(t)
	if err != nil {
		// t.Mode is always one of the three constants set by the
		// platform-specific NewBackend constructors (lima_darwin.go,
		// wsl_windows.go); NewConnector
		// only errors on an unrecognized Mode.
		panic(fmt.Sprintf("world: invalid delegate transport: %v", err))
	}
	return &delegatingBackend{conn: conn, t: t, warm: warm}
}

func (d *delegatingBackend) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.t.BuildURI(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	d.conn.PrepareRequest(req)
	return d.conn.Execute(ctx, req)
}

// Ready probes GET /v1/capabilities, which doubles as both a health
// check and readiness probe per the Agent API contract.
func (d *delegatingBackend) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := d.do(ctx, http.MethodGet, "/v1/capabilities", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (d *delegatingBackend) EnsureSession(ctx context.Context, spec Spec) (Handle, *IsolationReport, error) {
	if h, ok := d.cache.get(spec.ReuseSession); ok {
		return h, &IsolationReport{}, nil
	}
	if !d.Ready() {
		if d.warm == nil {
			return Handle{}, nil, fmt.Errorf("world delegate unavailable and no warm-up configured")
		}
		if err := d.warm(ctx); err != nil {
			return Handle{}, nil, fmt.Errorf("warm up world delegate: %w", err)
		}
		if !pollUntilReady(ctx, d.Ready, 5*time.Second) {
			return Handle{}, nil, fmt.Errorf("world delegate did not become ready within 5s")
		}
	}

	h := newHandle()
	d.cache.put(h)
	return h, &IsolationReport{Steps: []StepResult{{Step: "delegated_vm", Applied: true}}}, nil
}

// delegateExecuteRequest/delegateExecuteResponse mirror internal/agentapi's
// ExecuteRequest/ExecuteResponse wire shape. Duplicated here rather than
// imported: internal/agentapi already imports internal/world for the
// Backend interface, so importing it back would cycle.
type delegateExecuteRequest struct {
	Cmd     string            `json:"cmd"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	AgentID string            `json:"agent_id"`
}

type delegateExecuteResponse struct {
	Exit       int      `json:"exit"`
	StdoutB64  string   `json:"stdout_b64"`
	StderrB64  string   `json:"stderr_b64"`
	ScopesUsed []string `json:"scopes_used"`
}

// Exec forwards req to the delegate's own world-agent as a plain
// /v1/execute call: the remote side applies the real Linux isolation
// stack and this process only proxies bytes.
func (d *delegatingBackend) Exec(ctx context.Context, h Handle, req ExecRequest) (ExecResult, error) {
	body, err := json.Marshal(delegateExecuteRequest{Cmd: req.Cmd, Cwd: req.Cwd, Env: req.Env, AgentID: req.AgentID})
	if err != nil {
		return ExecResult{}, err
	}

	resp, err := d.do(ctx, http.MethodPost, "/v1/execute", body)
	if err != nil {
		return ExecResult{}, fmt.Errorf("delegate execute: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ExecResult{}, fmt.Errorf("delegate execute: status %d", resp.StatusCode)
	}

	var decoded delegateExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ExecResult{}, fmt.Errorf("delegate execute: decoding response: %w", err)
	}
	stdout, err := base64.StdEncoding.DecodeString(decoded.StdoutB64)
	if err != nil {
		return ExecResult{}, fmt.Errorf("delegate execute: decoding stdout: %w", err)
	}
	stderr, err := base64.StdEncoding.DecodeString(decoded.StderrB64)
	if err != nil {
		return ExecResult{}, fmt.Errorf("delegate execute: decoding stderr: %w", err)
	}
	return ExecResult{Exit: decoded.Exit, Stdout: stdout, Stderr: stderr, ScopesUsed: decoded.ScopesUsed}, nil
}

func (d *delegatingBackend) FsDiff(ctx context.Context, h Handle, spanID string) (*trace.FsDiff, error) {
	return &trace.FsDiff{}, nil
}

func (d *delegatingBackend) ApplyPolicy(ctx context.Context, h Handle, spec Spec) error {
	return nil
}

// pollUntilReady polls ready at a short fixed interval until it returns
// true or the deadline elapses, matching the Windows WSL backend's
// "warm script + poll <= 5s" contract.
func pollUntilReady(ctx context.Context, ready func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return ready()
}
