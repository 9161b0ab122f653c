// Package agentapi implements Substrate's Agent API: the HTTP/JSON +
// WebSocket surface a coding agent speaks to reach the broker and the
// world backend, over whichever internal/transport.Connector its caller
// resolved.
package agentapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/substrate-dev/substrate/internal/broker"
	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/pty"
	"github.com/substrate-dev/substrate/internal/ratelimit"
	"github.com/substrate-dev/substrate/internal/substrateerr"
	"github.com/substrate-dev/substrate/internal/trace"
	"github.com/substrate-dev/substrate/internal/world"
)

// Config holds the Agent API server's tunables, sourced from env vars per
// spec.md §4.4.5: RATE_LIMIT_RPM, RATE_LIMIT_CONCURRENT, REQUEST_TIMEOUT.
type Config struct {
	RateLimit      ratelimit.Config
	RequestTimeout time.Duration
}

// DefaultConfig matches an Agent API started with none of the tuning env
// vars set.
func DefaultConfig() Config {
	return Config{RateLimit: ratelimit.DefaultConfig(), RequestTimeout: 30 * time.Second}
}

// Server wires the broker, the world backend, the trace spine, and the
// rate limiter behind the Agent API's HTTP surface.
type Server struct {
	cfg     Config
	broker  *broker.Broker
	world   world.Backend
	tc      *trace.Context
	limiter *ratelimit.Limiter

	mux *http.ServeMux
	srv *http.Server
}

// NewServer constructs a Server ready to have its Handler mounted on a
// listener, or run directly via Serve.
func NewServer(cfg Config, b *broker.Broker, w world.Backend, tc *trace.Context, limiter *ratelimit.Limiter) *Server {
	s := &Server{cfg: cfg, broker: b, world: w, tc: tc, limiter: limiter}
	s.mux = http.NewServeMux()
	s.routes()
	s.srv = &http.Server{Handler: s.mux}
	return s
}

// Handler returns the server's composed http.Handler, for tests and for
// embedding behind additional middleware.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/execute", s.withLimiterAndTimeout(s.handleExecute))
	s.mux.HandleFunc("POST /v1/execute/stream", s.withLimiterAndTimeout(s.handleExecuteStream))
	s.mux.HandleFunc("GET /v1/capabilities", s.handleCapabilities)
	s.mux.HandleFunc("GET /v1/trace/{span_id}", s.handleTrace)
	s.mux.HandleFunc("POST /v1/request_scopes", s.withLimiterAndTimeout(s.handleRequestScopes))
	s.mux.HandleFunc("GET /pty", pty.ServeHTTP)
}

// Serve runs the HTTP server on ln until the context is cancelled or the
// server errors. Callers that inherited ln via socket activation pass it
// in directly; otherwise net.Listen("tcp", addr) first.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withLimiterAndTimeout wraps h with the per-agent rate limiter and the
// request timeout, both applied before any handler-specific logic runs.
func (s *Server) withLimiterAndTimeout(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get("X-Substrate-Agent-Id")
		if agentID == "" {
			agentID = "unknown"
		}

		res, ok, reason := s.limiter.Allow(agentID)
		if !ok {
			writeAPIError(w, http.StatusTooManyRequests, substrateerr.New(substrateerr.KindInternal, "RateLimited"), string(reason))
			return
		}
		defer res.Release()

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			h(w, r.WithContext(ctx))
		}()

		select {
		case <-done:
		case <-ctx.Done():
			writeAPIError(w, http.StatusInternalServerError, substrateerr.Timeout(), "")
		}
	}
}

// execOnHost runs cmd directly on the host, outside any world session —
// used when the broker's decision carries no isolate=true restriction.
func execOnHost(ctx context.Context, req ExecuteRequest) (world.ExecResult, error) {
	cmd := exec.CommandContext(ctx, hostShell(), hostShellFlag(), req.Cmd)
	cmd.Dir = req.Cwd
	cmd.Env = flattenEnv(req.Env)

	stdout, err := cmd.Output()
	var stderr []byte
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			stderr = exitErr.Stderr
		} else {
			return world.ExecResult{}, fmt.Errorf("host exec: %w", err)
		}
	}
	return world.ExecResult{Exit: exitCode, Stdout: stdout, Stderr: stderr}, nil
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

func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	return v, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, err *substrateerr.Error, detail string) {
	writeJSON(w, status, ApiError{Error: err.Msg, Kind: err.Kind.String(), Detail: detail})
}

func encodeB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func isIsolated(restrictions []string) bool {
	for _, r := range restrictions {
		if r == "isolate=true" {
			return true
		}
	}
	return false
}

func worldSpecFromRequest(req ExecuteRequest, fs policy.WorldFS) world.Spec {
	spec := world.Spec{
		ReuseSession:   true,
		ProjectDir:     req.Cwd,
		FsMode:         policy.FsModeWritable,
		Isolation:      fs.Isolation,
		ReadAllowlist:  fs.ReadAllowlist,
		WriteAllowlist: fs.WriteAllowlist,
	}
	if req.WorldFsMode == string(policy.FsModeReadOnly) {
		spec.FsMode = policy.FsModeReadOnly
	}
	if req.Budget != nil {
		spec.Limits = policy.Limits{MaxRuntimeMs: req.Budget.MaxRuntimeMs, MaxEgressBytes: req.Budget.MaxEgressBytes}
	}
	return spec
}

var logf = log.Printf
