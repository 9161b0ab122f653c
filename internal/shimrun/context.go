// Package shimrun implements the Substrate shim: a PATH-front executable
// that masquerades as any of a fixed list of developer tools, re-execs the
// real binary, and logs a command_start/command_complete span pair around
// it.
package shimrun

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/substrate-dev/substrate/internal/trace"
)

const (
	envActive       = "SHIM_ACTIVE"
	envDepth        = "SHIM_DEPTH"
	envSessionID    = "SHIM_SESSION_ID"
	envOriginalPath = "SHIM_ORIGINAL_PATH"
	envTraceLog     = "SHIM_TRACE_LOG"
	envCaller       = "SHIM_CALLER"
	envCallStack    = "SHIM_CALL_STACK"
	envParentCmdID  = "SHIM_PARENT_CMD_ID"
	envParentSpan   = "SHIM_PARENT_SPAN"
	envBypass       = "SHIM_BYPASS"
	envLogOpts      = "SHIM_LOG_OPTS"

	// maxCallStack is the cap on SHIM_CALL_STACK entries; beyond this the
	// stack is truncated with a leading "..." marker.
	maxCallStack = 8
)

// Context is the resolved execution context for one shim invocation.
type Context struct {
	CommandName string
	ShimDir     string
	SessionID   string
	Depth       int
	LogPath     string
	Caller      string
	CallStack   []string
	ParentCmdID string
	ParentSpan  string
	Bypass      bool
	RawLogOpts  bool // SHIM_LOG_OPTS=raw: disable redaction
}

// FromCurrentExe builds a Context from the current process's argv[0] and
// environment, mirroring the original shim's ShimContext::from_current_exe.
func FromCurrentExe(argv0 string, environ []string) (*Context, error) {
	env := envMap(environ)

	commandName := filepath.Base(argv0)
	shimDir := filepath.Dir(mustAbs(argv0))

	sessionID := env[envSessionID]
	if sessionID == "" {
		sessionID = trace.NewSessionID()
	}

	depth := 0
	if v, ok := env[envDepth]; ok {
		if n, err := parseNonNegativeInt(v); err == nil {
			depth = n
		}
	}

	logPath := env[envTraceLog]
	if logPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("shimrun: resolving home dir for default trace log: %w", err)
		}
		logPath = filepath.Join(home, ".substrate", "trace.jsonl")
	}

	caller := env[envCaller]
	if caller == "" {
		caller = commandName
	}

	var stack []string
	if v, ok := env[envCallStack]; ok && v != "" {
		stack = strings.Split(v, ",")
	}

	return &Context{
		CommandName: commandName,
		ShimDir:     shimDir,
		SessionID:   sessionID,
		Depth:       depth,
		LogPath:     logPath,
		Caller:      caller,
		CallStack:   stack,
		ParentCmdID: env[envParentCmdID],
		ParentSpan:  env[envParentSpan],
		Bypass:      env[envBypass] == "1",
		RawLogOpts:  env[envLogOpts] == "raw",
	}, nil
}

// NextCallStack appends CommandName to CallStack, collapsing a consecutive
// duplicate of the same name and capping the result to maxCallStack
// entries with a leading "..." marker when truncated. Non-consecutive
// repeats (A,B,A) are kept as-is.
func (c *Context) NextCallStack() []string {
	stack := append([]string{}, c.CallStack...)
	if len(stack) == 0 || stack[len(stack)-1] != c.CommandName {
		stack = append(stack, c.CommandName)
	}
	if len(stack) <= maxCallStack {
		return stack
	}
	truncated := make([]string, 0, maxCallStack+1)
	truncated = append(truncated, "...")
	truncated = append(truncated, stack[len(stack)-maxCallStack:]...)
	return truncated
}

// CallStackString renders NextCallStack as the comma-separated
// SHIM_CALL_STACK value.
func (c *Context) CallStackString() string {
	return strings.Join(c.NextCallStack(), ",")
}

// ExecEnv builds the full environment for the child process, setting the
// shim contract variables for whatever nested shim it might invoke.
func (c *Context) ExecEnv(originalPath string, spanID string) []string {
	env := os.Environ()
	env = setEnv(env, envActive, "1")
	env = setEnv(env, envDepth, fmt.Sprintf("%d", c.Depth+1))
	env = setEnv(env, envSessionID, c.SessionID)
	env = setEnv(env, envOriginalPath, originalPath)
	env = setEnv(env, envTraceLog, c.LogPath)
	env = setEnv(env, envCaller, c.Caller)
	env = setEnv(env, envCallStack, c.CallStackString())
	env = setEnv(env, envParentCmdID, c.ParentCmdID)
	env = setEnv(env, envParentSpan, spanID)
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func parseNonNegativeInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a non-negative integer: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
