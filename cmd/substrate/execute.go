package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/substrate-dev/substrate/internal/broker"
	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/trace"
	"github.com/substrate-dev/substrate/internal/world"
)

// worldRetryDelays mirrors internal/agentapi's backoff for a world
// backend that is still warming up.
var worldRetryDelays = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// runExecute implements the `-c CMD` / `-f SCRIPT` / bare-args path: the
// same decide-then-run flow as the Agent API's /v1/execute, but run
// in-process against the local broker and world backend with stdio
// connected straight through instead of being captured and JSON-encoded.
func runExecute(f topFlags, cmdLine string, stdout, stderr io.Writer) error {
	if !f.shimSkip {
		ensureShimsDeployed()
	}

	eff := effectiveConfigForCLI(f)

	pol, err := policy.Load(".", os.ExpandEnv("$HOME/.substrate"))
	if err != nil {
		pol = policy.Default()
	}

	backend := world.NewBackend()
	b := broker.New(pol, broker.WithWorldReadiness(backend))
	if err := b.SetObserveOnly(eff.PolicyMode == "observe"); err != nil {
		fmt.Fprintf(stderr, "substrate: %v\n", err)
		return &exitError{code: 1}
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	tc, _ := trace.Init(tracePathFromEnv())
	if tc != nil {
		defer tc.Close()
	}

	spanID := trace.NewSpanID()
	sessionID := trace.NewSessionID()
	start := time.Now()

	decision, err := b.Evaluate(cmdLine, cwd, "cli")
	if err != nil {
		fmt.Fprintf(stderr, "substrate: policy evaluation failed: %v\n", err)
		return &exitError{code: 1}
	}
	appendSpan(tc, &trace.Span{
		Ts: start, EventType: trace.EventCommandStart, SessionID: sessionID, SpanID: spanID,
		Component: trace.ComponentBroker, AgentID: "cli", Cwd: cwd, Cmd: cmdLine,
		PolicyDecision: &trace.PolicyDecision{Action: string(decision.Action), Reason: decision.Reason, Restrictions: decision.Restrictions},
	})

	if !decision.IsAllow() {
		appendSpan(tc, &trace.Span{
			Ts: time.Now(), EventType: trace.EventPolicyViolation, SessionID: sessionID, SpanID: spanID,
			Component: trace.ComponentBroker, AgentID: "cli", Cwd: cwd, Cmd: cmdLine,
			PolicyDecision: &trace.PolicyDecision{Action: string(decision.Action), Reason: decision.Reason, Restrictions: decision.Restrictions},
		})
		reason := decision.Reason
		if decision.Action == broker.ActionRequireApproval {
			reason = "requires interactive approval (not supported outside --ci-free sessions yet)"
		}
		fmt.Fprintf(stderr, "substrate: command denied: %s\n", reason)
		return &exitError{code: 126}
	}

	origin := trace.OriginHost
	isolated := hasRestriction(decision.Restrictions, "isolate=true") || f.world
	if f.noWorld {
		isolated = false
	}

	ctx := context.Background()
	var exit int
	if isolated {
		origin = trace.OriginWorld
		exit, err = execInWorld(ctx, backend, pol, cmdLine, cwd, f, stdout, stderr)
	} else {
		exit, err = execOnHost(ctx, cmdLine, cwd, f, stdout, stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "substrate: %v\n", err)
		return &exitError{code: 1}
	}

	durationMs := time.Since(start).Milliseconds()
	appendSpan(tc, &trace.Span{
		Ts: time.Now(), EventType: trace.EventCommandComplete, SessionID: sessionID, SpanID: spanID,
		Component: trace.ComponentBroker, AgentID: "cli", Cwd: cwd, Cmd: cmdLine,
		Exit: &exit, DurationMs: &durationMs, ExecutionOrigin: origin,
		WorldFsStrategyPrimary: worldFsStrategyFor(origin), WorldFsStrategyFinal: worldFsStrategyFor(origin),
		WorldFsStrategyFallbackReason: trace.FallbackNone,
	})

	if exit != 0 && !f.noExitOnError {
		return &exitError{code: exit}
	}
	return nil
}

func worldFsStrategyFor(origin trace.ExecutionOrigin) trace.WorldFsStrategy {
	if origin == trace.OriginHost {
		return trace.StrategyHost
	}
	return trace.StrategyOverlay
}

func hasRestriction(restrictions []string, want string) bool {
	for _, r := range restrictions {
		if r == want {
			return true
		}
	}
	return false
}

func appendSpan(tc *trace.Context, span *trace.Span) {
	if tc == nil {
		return
	}
	_ = tc.Append(span)
}

func execOnHost(ctx context.Context, cmdLine, cwd string, f topFlags, stdout, stderr io.Writer) (int, error) {
	if f.usePTY {
		return runPTYLocal(ctx, cmdLine, cwd, f.shellOverride)
	}

	shellBin, shellFlag := hostShellParts(f.shellOverride)
	cmd := exec.CommandContext(ctx, shellBin, shellFlag, cmdLine)
	cmd.Dir = cwd
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return exitCodeOf(err), nil
	}
	return 0, nil
}

func execInWorld(ctx context.Context, backend world.Backend, pol *policy.Policy, cmdLine, cwd string, f topFlags, stdout, stderr io.Writer) (int, error) {
	spec := world.Spec{
		ReuseSession:   true,
		ProjectDir:     cwd,
		FsMode:         policy.FsModeWritable,
		Isolation:      pol.WorldFS.Isolation,
		ReadAllowlist:  pol.WorldFS.ReadAllowlist,
		WriteAllowlist: pol.WorldFS.WriteAllowlist,
	}

	var handle world.Handle
	var err error
	for attempt := 0; ; attempt++ {
		handle, _, err = backend.EnsureSession(ctx, spec)
		if err == nil {
			break
		}
		if attempt >= len(worldRetryDelays) {
			return 0, fmt.Errorf("ensure_session failed: %w", err)
		}
		select {
		case <-time.After(worldRetryDelays[attempt]):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	result, err := backend.Exec(ctx, handle, world.ExecRequest{Cmd: cmdLine, Cwd: cwd, AgentID: "cli"})
	if err != nil {
		return 0, err
	}
	stdout.Write(result.Stdout)
	stderr.Write(result.Stderr)
	return result.Exit, nil
}

func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func hostShellParts(override string) (bin, flag string) {
	if override != "" {
		return override, "-c"
	}
	if runtime.GOOS == "windows" {
		return "cmd.exe", "/C"
	}
	return "/bin/sh", "-c"
}

// runInteractive is the no-command-given fallback: an interactive shell
// session, PTY-backed when --pty is set.
func runInteractive(f topFlags, stdout, stderr io.Writer) error {
	shellBin, _ := hostShellParts(f.shellOverride)
	if shellBin == "/bin/sh" {
		if sh := os.Getenv("SHELL"); sh != "" {
			shellBin = sh
		}
	}
	cwd, _ := os.Getwd()

	var exit int
	var err error
	if f.usePTY {
		exit, err = runPTYLocal(context.Background(), "", cwd, shellBin)
	} else {
		cmd := exec.Command(shellBin)
		cmd.Dir = cwd
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err = cmd.Run()
		exit = exitCodeOf(err)
		err = nil
	}
	if err != nil {
		fmt.Fprintf(stderr, "substrate: %v\n", err)
		return &exitError{code: 1}
	}
	if exit != 0 {
		return &exitError{code: exit}
	}
	return nil
}
