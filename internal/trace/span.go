// Package trace implements Substrate's append-only JSONL trace spine: one
// object per command_start/command_complete pair, correlated by span_id.
package trace

import "time"

// EventType enumerates the kinds of events that can appear in the trace log.
type EventType string

const (
	EventCommandStart    EventType = "command_start"
	EventCommandComplete EventType = "command_complete"
	EventPolicyViolation EventType = "policy_violation"
	EventShimRepair      EventType = "shim_repair"
)

// Component identifies which part of Substrate emitted a span.
type Component string

const (
	ComponentShell      Component = "shell"
	ComponentShim       Component = "shim"
	ComponentBroker     Component = "broker"
	ComponentWorldAgent Component = "world_agent"
)

// ExecutionOrigin says whether a command ran directly on the host or was
// forwarded into a world (local isolation or a remote agent).
type ExecutionOrigin string

const (
	OriginHost  ExecutionOrigin = "host"
	OriginWorld ExecutionOrigin = "world"
)

// Flipped returns the other origin; useful when mirroring a span for the
// opposite side of a host<->world forward.
func (o ExecutionOrigin) Flipped() ExecutionOrigin {
	if o == OriginHost {
		return OriginWorld
	}
	return OriginHost
}

// WorldFsStrategy names which overlay mechanism actually backed a session.
type WorldFsStrategy string

const (
	StrategyOverlay WorldFsStrategy = "overlay"
	StrategyFuse    WorldFsStrategy = "fuse"
	StrategyHost    WorldFsStrategy = "host"
)

// WorldFsFallbackReason explains why the final strategy diverged from the
// primary one. "none" means no fallback happened.
type WorldFsFallbackReason string

const (
	FallbackNone                   WorldFsFallbackReason = "none"
	FallbackPrimaryUnavailable     WorldFsFallbackReason = "primary_unavailable"
	FallbackPrimaryMountFailed     WorldFsFallbackReason = "primary_mount_failed"
	FallbackPrimaryProbeFailed     WorldFsFallbackReason = "primary_probe_failed"
	FallbackFallbackUnavailable    WorldFsFallbackReason = "fallback_unavailable"
	FallbackFallbackMountFailed    WorldFsFallbackReason = "fallback_mount_failed"
	FallbackFallbackProbeFailed    WorldFsFallbackReason = "fallback_probe_failed"
	FallbackWorldOptionalToHost    WorldFsFallbackReason = "world_optional_fallback_to_host"
)

// EdgeType classifies a GraphEdge between two spans. Carried for future
// causal-graph tooling (substrate graph ingest); unused by core decisions.
type EdgeType string

const (
	EdgeParentChild EdgeType = "parent_child"
	EdgeDataFlow    EdgeType = "data_flow"
	EdgeCausedBy    EdgeType = "caused_by"
	EdgeDependsOn   EdgeType = "depends_on"
	EdgeTriggers    EdgeType = "triggers"
)

// GraphEdge records a causal relationship between two spans.
type GraphEdge struct {
	EdgeType EdgeType          `json:"edge_type"`
	FromSpan string            `json:"from_span"`
	ToSpan   string            `json:"to_span"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FsDiff summarizes filesystem changes an overlay session observed.
type FsDiff struct {
	Writes      []string `json:"writes"`
	Mods        []string `json:"mods"`
	Deletes     []string `json:"deletes"`
	Truncated   bool     `json:"truncated"`
	TreeHash    string   `json:"tree_hash,omitempty"`
	DisplayPath string   `json:"display_path,omitempty"`
}

// TransportMeta records which transport carried an execute request.
type TransportMeta struct {
	Mode             string `json:"mode"`
	Endpoint         string `json:"endpoint,omitempty"`
	SocketActivation bool   `json:"socket_activation,omitempty"`
}

// PolicyDecision mirrors a broker.Decision for trace purposes, independent
// of the broker package to keep trace a leaf dependency.
type PolicyDecision struct {
	Action       string   `json:"action"`
	Reason       string   `json:"reason,omitempty"`
	Restrictions []string `json:"restrictions,omitempty"`
}

// ReplayContext captures enough environment state to re-execute a past
// command in-world.
type ReplayContext struct {
	Path              string `json:"path"`
	EnvHash           string `json:"env_hash"`
	Umask             uint32 `json:"umask"`
	Locale            string `json:"locale,omitempty"`
	Cwd               string `json:"cwd"`
	PolicyID          string `json:"policy_id,omitempty"`
	PolicyCommit      string `json:"policy_commit,omitempty"`
	WorldImageVersion string `json:"world_image_version,omitempty"`
	Hostname          string `json:"hostname,omitempty"`
	User              string `json:"user,omitempty"`
	Shell             string `json:"shell,omitempty"`
	Term              string `json:"term,omitempty"`
	WorldImage        string `json:"world_image,omitempty"`
	ExecutionOrigin   string `json:"execution_origin,omitempty"`
	Transport         string `json:"transport,omitempty"`
	AnchorMode        string `json:"anchor_mode,omitempty"`
	AnchorPath        string `json:"anchor_path,omitempty"`
	WorldRootMode     string `json:"world_root_mode,omitempty"`
	WorldRootPath     string `json:"world_root_path,omitempty"`
	Caged             bool   `json:"caged,omitempty"`
	WorldFsMode       string `json:"world_fs_mode,omitempty"`
}

// Span is the single schema written to the trace log, one JSON object per
// line. Fields follow the wire contract exactly; consumers rely on the
// mandated fields being present even when the pointer-shaped ones are nil.
type Span struct {
	Ts        time.Time `json:"ts"`
	EventType EventType `json:"event_type"`
	SessionID string    `json:"session_id"`
	SpanID    string    `json:"span_id"`
	ParentSpan string   `json:"parent_span,omitempty"`
	Component Component `json:"component"`
	WorldID   string    `json:"world_id,omitempty"`
	PolicyID  string    `json:"policy_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Cwd       string    `json:"cwd"`
	Cmd       string    `json:"cmd"`
	Exit      *int      `json:"exit,omitempty"`
	DurationMs *int64   `json:"duration_ms,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	ScopesUsed []string `json:"scopes_used,omitempty"`
	FsDiff    *FsDiff   `json:"fs_diff,omitempty"`
	ReplayContext *ReplayContext `json:"replay_context,omitempty"`
	Transport *TransportMeta    `json:"transport,omitempty"`
	ExecutionOrigin ExecutionOrigin `json:"execution_origin,omitempty"`
	GraphEdges []GraphEdge `json:"graph_edges,omitempty"`
	PolicyDecision *PolicyDecision `json:"policy_decision,omitempty"`

	WorldFsStrategyPrimary        WorldFsStrategy       `json:"world_fs_strategy_primary,omitempty"`
	WorldFsStrategyFinal          WorldFsStrategy       `json:"world_fs_strategy_final,omitempty"`
	WorldFsStrategyFallbackReason WorldFsFallbackReason `json:"world_fs_strategy_fallback_reason,omitempty"`

	// Diagnostic context beyond the mandated schema, mirroring the shim's
	// logged entry: never required by invariants.
	Isatty   *IsattyInfo `json:"isatty,omitempty"`
	Ppid     int         `json:"ppid,omitempty"`
	Pid      int         `json:"pid,omitempty"`
	Hostname string      `json:"hostname,omitempty"`
	Platform string      `json:"platform,omitempty"`
	User     string      `json:"user,omitempty"`

	// Error is set on spawn failures: command_complete is omitted entirely
	// and a single event carries this instead.
	Error         string `json:"error,omitempty"`
	SpawnErrorKind string `json:"spawn_error_kind,omitempty"`
	SpawnErrno     int    `json:"spawn_errno,omitempty"`
}

// IsattyInfo records which of the three standard streams were a TTY at the
// moment a shim invocation started.
type IsattyInfo struct {
	Stdin  bool `json:"stdin"`
	Stdout bool `json:"stdout"`
	Stderr bool `json:"stderr"`
}

// SetCommandCompleteDefaults fills the world_fs_strategy_* triple with the
// sensible host-execution defaults when the caller never set them
// explicitly, per the ADR-0004 invariant that command_complete must always
// carry all three fields.
func (s *Span) SetCommandCompleteDefaults() {
	if s.WorldFsStrategyPrimary == "" {
		s.WorldFsStrategyPrimary = StrategyOverlay
	}
	if s.WorldFsStrategyFinal == "" {
		s.WorldFsStrategyFinal = StrategyHost
	}
	if s.WorldFsStrategyFallbackReason == "" {
		s.WorldFsStrategyFallbackReason = FallbackNone
	}
}
