package shimrun

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/substrate-dev/substrate/internal/trace"
)

// Result is what Run returns to cmd/substrate-shim's main.
type Result struct {
	ExitCode int
}

// Run executes the full shim flow for one invocation and returns the exit
// code the process should terminate with. It never returns a logging
// error to the caller beyond a single best-effort stderr line: a failure
// to write a trace span must not prevent the wrapped command from
// running.
func Run(argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{ExitCode: 2}, fmt.Errorf("shimrun: empty argv")
	}

	if os.Getenv(envBypass) == "1" {
		return runFullBypass(argv)
	}

	ctx, err := FromCurrentExe(argv[0], os.Environ())
	if err != nil {
		return Result{ExitCode: 1}, err
	}

	tc, openErr := trace.Init(ctx.LogPath)
	if openErr != nil {
		fmt.Fprintf(os.Stderr, "substrate-shim: trace init failed: %v\n", openErr)
	} else {
		defer tc.Close()
	}

	if os.Getenv(envActive) == "1" {
		return runNestedBypass(ctx, argv, tc)
	}

	return runTraced(ctx, argv, tc)
}

func runFullBypass(argv []string) (Result, error) {
	searchPath, err := BuildCleanSearchPath("", "")
	if err != nil {
		return Result{ExitCode: 1}, err
	}
	real, err := ResolveRealBinary(argv[0], searchPath)
	if err != nil {
		return Result{ExitCode: 1}, err
	}
	return execPassthrough(real, argv, os.Environ())
}

// runNestedBypass handles SHIM_ACTIVE=1: a shim calling another shim. The
// real binary still runs, SHIM_DEPTH is incremented, and a single
// diagnostic span is logged with a bypass:true marker — but there is no
// separate command_start/command_complete pair.
func runNestedBypass(ctx *Context, argv []string, tc *trace.Context) (Result, error) {
	originalPath, _ := os.LookupEnv(envOriginalPath)
	searchPath, err := BuildCleanSearchPath(originalPath, ctx.ShimDir)
	if err != nil {
		return Result{ExitCode: 1}, err
	}
	real, err := ResolveRealBinary(ctx.CommandName, searchPath)
	if err != nil {
		return Result{ExitCode: 1}, err
	}

	start := time.Now()
	spanID := trace.NewSpanID()
	env := ctx.ExecEnv(joinPath(searchPath), spanID)

	result, runErr := execPassthrough(real, argv, env)

	if tc != nil {
		span := buildDiagnosticSpan(ctx, argv, spanID, result.ExitCode, time.Since(start))
		span.Stdout = "bypass:true"
		if err := tc.Append(span); err != nil {
			fmt.Fprintf(os.Stderr, "substrate-shim: trace append failed: %v\n", err)
		}
	}
	return result, runErr
}

func runTraced(ctx *Context, argv []string, tc *trace.Context) (Result, error) {
	originalPath, _ := os.LookupEnv(envOriginalPath)
	searchPath, err := BuildCleanSearchPath(originalPath, ctx.ShimDir)
	if err != nil {
		return Result{ExitCode: 1}, err
	}
	real, err := ResolveRealBinary(ctx.CommandName, searchPath)
	if err != nil {
		return Result{ExitCode: 1}, err
	}

	spanID := trace.NewSpanID()
	redacted := RedactArgv(argv, ctx.RawLogOpts)

	if tc != nil {
		startSpan := baseSpan(ctx, spanID, redacted)
		startSpan.EventType = trace.EventCommandStart
		if err := tc.Append(startSpan); err != nil {
			fmt.Fprintf(os.Stderr, "substrate-shim: trace append failed: %v\n", err)
		}
	}

	env := ctx.ExecEnv(joinPath(searchPath), spanID)
	start := time.Now()
	result, runErr := execPassthrough(real, argv, env)
	duration := time.Since(start)

	if runErr != nil && isSpawnFailure(runErr) {
		if tc != nil {
			span := baseSpan(ctx, spanID, redacted)
			span.EventType = trace.EventCommandComplete
			span.Error = "spawn_failed"
			span.SpawnErrorKind = spawnErrorKind(runErr)
			if err := tc.Append(span); err != nil {
				fmt.Fprintf(os.Stderr, "substrate-shim: trace append failed: %v\n", err)
			}
		}
		return result, runErr
	}

	if tc != nil {
		completeSpan := baseSpan(ctx, spanID, redacted)
		completeSpan.EventType = trace.EventCommandComplete
		exit := result.ExitCode
		completeSpan.Exit = &exit
		durMs := duration.Milliseconds()
		completeSpan.DurationMs = &durMs
		completeSpan.SetCommandCompleteDefaults()
		if err := tc.Append(completeSpan); err != nil {
			fmt.Fprintf(os.Stderr, "substrate-shim: trace append failed: %v\n", err)
		}
	}

	return result, nil
}

func buildDiagnosticSpan(ctx *Context, argv []string, spanID string, exitCode int, duration time.Duration) *trace.Span {
	span := baseSpan(ctx, spanID, RedactArgv(argv, ctx.RawLogOpts))
	span.EventType = trace.EventCommandComplete
	span.Exit = &exitCode
	durMs := duration.Milliseconds()
	span.DurationMs = &durMs
	span.SetCommandCompleteDefaults()
	return span
}

func baseSpan(ctx *Context, spanID string, redactedArgv []string) *trace.Span {
	cwd, _ := os.Getwd()
	hostname, _ := os.Hostname()
	return &trace.Span{
		Ts:          time.Now(),
		SessionID:   ctx.SessionID,
		SpanID:      spanID,
		ParentSpan:  ctx.ParentSpan,
		Component:   trace.ComponentShim,
		Cwd:         cwd,
		Cmd:         joinArgs(redactedArgv),
		Hostname:    hostname,
		Platform:    platformName(),
		Ppid:        os.Getppid(),
		Pid:         os.Getpid(),
	}
}

func joinArgs(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func joinPath(dirs []string) string {
	out := ""
	for i, d := range dirs {
		if i > 0 {
			out += string(os.PathListSeparator)
		}
		out += d
	}
	return out
}

func isSpawnFailure(err error) bool {
	var exitErr *exec.ExitError
	return err != nil && !errors.As(err, &exitErr)
}

func spawnErrorKind(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "NotFound"
	}
	if errors.Is(err, os.ErrPermission) {
		return "PermissionDenied"
	}
	return "Other"
}

func platformName() string {
	return runtime.GOOS
}
