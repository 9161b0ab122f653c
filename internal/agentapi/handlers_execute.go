package agentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/substrate-dev/substrate/internal/broker"
	"github.com/substrate-dev/substrate/internal/substrateerr"
	"github.com/substrate-dev/substrate/internal/trace"
	"github.com/substrate-dev/substrate/internal/world"
)

// worldRetryDelays is the host-proxy's backoff schedule for transient
// world-backend unavailability (a Lima VM or WSL distro still warming
// up): three attempts at increasing delays before giving up.
var worldRetryDelays = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[ExecuteRequest](r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, substrateerr.New(substrateerr.KindUser, "invalid ExecuteRequest body"), err.Error())
		return
	}

	resp, status, apiErr := s.execute(r.Context(), req)
	if apiErr != nil {
		writeAPIError(w, status, apiErr, "")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// execute runs the shared decide-then-run path for both /v1/execute and
// /v1/execute/stream (the streaming endpoint just chunks the same result
// instead of returning it as one JSON body).
func (s *Server) execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, int, *substrateerr.Error) {
	spanID := trace.NewSpanID()
	sessionID := trace.NewSessionID()
	start := time.Now()

	decision, err := s.broker.Evaluate(req.Cmd, req.Cwd, req.AgentID)
	if err != nil {
		return ExecuteResponse{}, http.StatusInternalServerError, substrateerr.Wrap(substrateerr.KindInternal, "policy evaluation failed", err)
	}

	s.appendSpan(&trace.Span{
		Ts: start, EventType: trace.EventCommandStart, SessionID: sessionID, SpanID: spanID,
		Component: trace.ComponentBroker, AgentID: req.AgentID, Cwd: req.Cwd, Cmd: req.Cmd,
		PolicyDecision: &trace.PolicyDecision{Action: string(decision.Action), Reason: decision.Reason, Restrictions: decision.Restrictions},
	})

	if !decision.IsAllow() {
		s.appendSpan(&trace.Span{
			Ts: time.Now(), EventType: trace.EventPolicyViolation, SessionID: sessionID, SpanID: spanID,
			Component: trace.ComponentBroker, AgentID: req.AgentID, Cwd: req.Cwd, Cmd: req.Cmd,
			PolicyDecision: &trace.PolicyDecision{Action: string(decision.Action), Reason: decision.Reason, Restrictions: decision.Restrictions},
		})
		kind := substrateerr.KindPolicyDeny
		msg := "command denied by policy"
		if decision.Action == broker.ActionRequireApproval {
			msg = "command requires interactive approval"
		}
		return ExecuteResponse{}, http.StatusForbidden, substrateerr.New(kind, msg)
	}

	origin := trace.OriginHost
	var result world.ExecResult
	var fsDiff *trace.FsDiff

	if isIsolated(decision.Restrictions) {
		origin = trace.OriginWorld
		result, fsDiff, err = s.executeInWorld(ctx, req, spanID)
	} else {
		result, err = execOnHost(ctx, req)
	}
	if err != nil {
		return ExecuteResponse{}, http.StatusInternalServerError, substrateerr.Wrap(substrateerr.KindInternal, "execution failed", err)
	}

	durationMs := time.Since(start).Milliseconds()
	exit := result.Exit
	s.appendSpan(&trace.Span{
		Ts: time.Now(), EventType: trace.EventCommandComplete, SessionID: sessionID, SpanID: spanID,
		Component: trace.ComponentBroker, AgentID: req.AgentID, Cwd: req.Cwd, Cmd: req.Cmd,
		Exit: &exit, DurationMs: &durationMs, ScopesUsed: result.ScopesUsed, FsDiff: fsDiff,
		ExecutionOrigin: origin,
		WorldFsStrategyPrimary: worldFsStrategyFor(origin), WorldFsStrategyFinal: worldFsStrategyFor(origin),
		WorldFsStrategyFallbackReason: trace.FallbackNone,
	})

	return ExecuteResponse{
		Exit: result.Exit, StdoutB64: encodeB64(result.Stdout), StderrB64: encodeB64(result.Stderr),
		ScopesUsed: result.ScopesUsed, FsDiff: fsDiff,
	}, http.StatusOK, nil
}

func worldFsStrategyFor(origin trace.ExecutionOrigin) trace.WorldFsStrategy {
	if origin == trace.OriginHost {
		return trace.StrategyHost
	}
	return trace.StrategyOverlay
}

// executeInWorld ensures a session, with a retry/backoff schedule for
// transient world-backend unavailability, then runs req inside it and
// collects the resulting filesystem diff.
func (s *Server) executeInWorld(ctx context.Context, req ExecuteRequest, spanID string) (world.ExecResult, *trace.FsDiff, error) {
	spec := worldSpecFromRequest(req, s.broker.WorldFS())

	var handle world.Handle
	var err error
	for attempt := 0; ; attempt++ {
		handle, _, err = s.world.EnsureSession(ctx, spec)
		if err == nil {
			break
		}
		if attempt >= len(worldRetryDelays) {
			return world.ExecResult{}, nil, substrateerr.Wrap(substrateerr.KindWorldUnavailable, "ensure_session failed", err)
		}
		select {
		case <-time.After(worldRetryDelays[attempt]):
		case <-ctx.Done():
			return world.ExecResult{}, nil, ctx.Err()
		}
	}

	result, err := s.world.Exec(ctx, handle, world.ExecRequest{
		Cmd: req.Cmd, Cwd: req.Cwd, Env: req.Env, AgentID: req.AgentID, SpanID: spanID,
	})
	if err != nil {
		return world.ExecResult{}, nil, err
	}

	fsDiff, err := s.world.FsDiff(ctx, handle, spanID)
	if err != nil {
		fsDiff = nil
	}
	return result, fsDiff, nil
}

func (s *Server) appendSpan(span *trace.Span) {
	if s.tc == nil {
		return
	}
	if err := s.tc.Append(span); err != nil {
		logf("[agentapi] trace append failed: %v", err)
	}
}

// handleExecuteStream writes the same execute() result as a single
// newline-delimited JSON frame (application/x-ndjson, chunked) once the
// command has finished, then ends the response. No frames are sent while
// the command is still running.
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[ExecuteRequest](r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, substrateerr.New(substrateerr.KindUser, "invalid ExecuteRequest body"), err.Error())
		return
	}

	resp, status, apiErr := s.execute(r.Context(), req)
	if apiErr != nil {
		writeAPIError(w, status, apiErr, "")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
