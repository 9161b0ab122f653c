// Package world implements Substrate's per-session isolation backend: a
// platform-neutral contract (ensure_session/exec/fs_diff/apply_policy)
// backed by native Linux namespaces+overlayfs, or delegated to a Lima VM
// (macOS) / WSL distro (Windows) over the Agent API.
package world

import (
	"context"

	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/trace"
)

// Spec describes the world a caller wants ensure_session to produce or
// reuse.
type Spec struct {
	ReuseSession   bool
	IsolateNetwork bool
	Limits         policy.Limits
	AllowedDomains []string
	ProjectDir     string
	AlwaysIsolate  bool
	FsMode         policy.FsMode
	Isolation      policy.Isolation
	ReadAllowlist  []string
	WriteAllowlist []string
}

// WorldInitArg is the argv[1] cmd/world-agent's main checks for to decide
// whether it has been re-exec'd as the namespaced child (call
// RunWorldInit) rather than started as the cross-platform Agent API HTTP
// server.
const WorldInitArg = "__substrate_world_init"

// Handle is an opaque session identifier, shared by value to
// exec/fs_diff/apply_policy. Owned by whichever broker created it.
type Handle struct {
	ID string
}

// ExecRequest describes one command to run inside a world.
type ExecRequest struct {
	Cmd     string
	Cwd     string
	Env     map[string]string
	AgentID string
	SpanID  string
}

// ExecResult is the outcome of running a command inside a world.
type ExecResult struct {
	Exit       int
	Stdout     []byte
	Stderr     []byte
	ScopesUsed []string
}

// Backend is the platform-neutral world contract. Linux implements it
// in-process; macOS/Windows implement it by delegating over the Agent API
// to a Lima VM / WSL distro running the same contract as a server.
type Backend interface {
	EnsureSession(ctx context.Context, spec Spec) (Handle, *IsolationReport, error)
	Exec(ctx context.Context, h Handle, req ExecRequest) (ExecResult, error)
	FsDiff(ctx context.Context, h Handle, spanID string) (*trace.FsDiff, error)
	ApplyPolicy(ctx context.Context, h Handle, spec Spec) error
	// Ready reports whether the backend is currently able to service
	// ensure_session, consulted by the broker's fail-closed check.
	Ready() bool
}
