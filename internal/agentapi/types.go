package agentapi

import "github.com/substrate-dev/substrate/internal/trace"

// ExecuteRequest is the JSON body for POST /v1/execute and
// /v1/execute/stream.
type ExecuteRequest struct {
	Profile     string            `json:"profile,omitempty"`
	Cmd         string            `json:"cmd"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	PTY         bool              `json:"pty,omitempty"`
	AgentID     string            `json:"agent_id"`
	Budget      *Budget           `json:"budget,omitempty"`
	WorldFsMode string            `json:"world_fs_mode,omitempty"`
}

// Budget caps a single execute call's resource use, echoed into the
// world session's policy.Limits when isolation is in play.
type Budget struct {
	MaxRuntimeMs   *int64 `json:"max_runtime_ms,omitempty"`
	MaxEgressBytes *int64 `json:"max_egress_bytes,omitempty"`
}

// ExecuteResponse is returned for a non-streaming execute call.
type ExecuteResponse struct {
	Exit       int            `json:"exit"`
	StdoutB64  string         `json:"stdout_b64"`
	StderrB64  string         `json:"stderr_b64"`
	ScopesUsed []string       `json:"scopes_used"`
	FsDiff     *trace.FsDiff  `json:"fs_diff,omitempty"`
}

// ApiError is the JSON shape returned for any non-2xx response. Clients
// attempt to decode this first; failing that, they fall back to a
// generic "HTTP <status> error: <text>" using the raw body.
type ApiError struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// CapabilitiesResponse answers GET /v1/capabilities, which doubles as the
// health check the Connector polls while warming a delegated backend.
type CapabilitiesResponse struct {
	Ready             bool     `json:"ready"`
	WorldBackend      string   `json:"world_backend"`
	IsolationPrimitives []string `json:"isolation_primitives"`
	TransportMode     string   `json:"transport_mode"`
	RateLimitRPM      int      `json:"rate_limit_rpm"`
	RateLimitMaxConcurrent int `json:"rate_limit_max_concurrent"`
}

// RequestScopesRequest is the body for POST /v1/request_scopes: an agent
// asks to be granted a set of named scopes ahead of an execute call (e.g.
// network egress to a domain not yet in net_allowed).
type RequestScopesRequest struct {
	AgentID string   `json:"agent_id"`
	Scopes  []string `json:"scopes"`
}

// RequestScopesResponse reports which of the requested scopes were
// actually granted; a scope that is not granted is listed in Denied rather
// than erroring the whole call, so a caller can always fall back to
// operating with fewer scopes than it asked for.
type RequestScopesResponse struct {
	Granted []string `json:"granted"`
	Denied  []string `json:"denied"`
}
