package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/config"
	"github.com/substrate-dev/substrate/internal/shimrun"
	"github.com/substrate-dev/substrate/internal/trace"
)

// Build metadata, injected via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

// topFlags holds every top-level flag from the CLI surface; cobra fills
// these via the root command's own flag set (not a subcommand's), since
// `-c`/`-f` and friends apply to the root invocation itself rather than
// to a named subcommand.
type topFlags struct {
	cmdLine       string
	scriptPath    string
	ci            bool
	noExitOnError bool
	usePTY        bool
	shellOverride string
	versionJSON   bool
	shimStatus    bool
	shimStatusJSON bool
	shimSkip      bool
	shimDeploy    bool
	shimRemove    bool
	asyncRepl     bool
	legacyRepl    bool
	traceSpan     string
	replaySpan    string
	replayVerbose bool
	caged         bool
	uncaged       bool
	anchorMode    string
	anchorPath    string
	world         bool
	noWorld       bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f topFlags

	root := &cobra.Command{
		Use:           "substrate",
		Short:         "Substrate — an agent-facing shell that mediates every command through policy",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(f, args, stdout, stderr)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&f.cmdLine, "command", "c", "", "run CMD through the policy broker and exit")
	flags.StringVarP(&f.scriptPath, "file", "f", "", "run the script at PATH through the policy broker and exit")
	flags.BoolVar(&f.ci, "ci", false, "non-interactive mode: no prompts, no approval waits")
	flags.BoolVar(&f.noExitOnError, "no-exit-on-error", false, "keep the session alive after a non-zero exit in -f mode")
	flags.BoolVar(&f.usePTY, "pty", false, "allocate a pseudo-terminal for the command")
	flags.StringVar(&f.shellOverride, "shell", "", "shell binary to use instead of the platform default")
	flags.BoolVar(&f.versionJSON, "version-json", false, "print version info as JSON and exit")
	flags.BoolVar(&f.shimStatus, "shim-status", false, "print shim installation status and exit")
	flags.BoolVar(&f.shimStatusJSON, "shim-status-json", false, "print shim installation status as JSON and exit")
	flags.BoolVar(&f.shimSkip, "shim-skip", false, "don't deploy shims before running")
	flags.BoolVar(&f.shimDeploy, "shim-deploy", false, "deploy shims into ~/.substrate/shims and exit")
	flags.BoolVar(&f.shimRemove, "shim-remove", false, "remove deployed shims and exit")
	flags.BoolVar(&f.asyncRepl, "async-repl", false, "use the async REPL loop (default)")
	flags.BoolVar(&f.legacyRepl, "legacy-repl", false, "use the legacy synchronous REPL loop")
	flags.StringVar(&f.traceSpan, "trace", "", "print a trace span by id and exit")
	flags.StringVar(&f.replaySpan, "replay", "", "print a recorded span by id (summary line, or full JSON with --replay-verbose) and exit")
	flags.BoolVar(&f.replayVerbose, "replay-verbose", false, "include the full span JSON in --replay output")
	flags.BoolVar(&f.caged, "caged", false, "force caged (isolated) mode for this invocation")
	flags.BoolVar(&f.uncaged, "uncaged", false, "force uncaged (host) mode for this invocation")
	flags.StringVar(&f.anchorMode, "anchor-mode", "", "project|follow-cwd|custom")
	flags.StringVar(&f.anchorPath, "anchor-path", "", "anchor path when --anchor-mode=custom")
	flags.BoolVar(&f.world, "world", false, "force world isolation on")
	flags.BoolVar(&f.noWorld, "no-world", false, "force world isolation off")

	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newGraphCmd(stdout, stderr),
		newWorldCmd(stdout, stderr),
		newConfigCmd(stdout, stderr),
		newShimCmd(stdout, stderr),
		newHealthCmd(stdout, stderr),
	)
	return root
}

func runRoot(f topFlags, args []string, stdout, stderr io.Writer) error {
	switch {
	case f.versionJSON:
		return printVersionJSON(stdout)
	case f.shimStatus, f.shimStatusJSON:
		return doShimStatus(f.shimStatusJSON, stdout, stderr)
	case f.shimDeploy:
		return doShimDeploy(stdout, stderr)
	case f.shimRemove:
		return doShimRemove(stdout, stderr)
	case f.traceSpan != "":
		return doShowSpan(f.traceSpan, true, stdout, stderr)
	case f.replaySpan != "":
		return doShowSpan(f.replaySpan, f.replayVerbose, stdout, stderr)
	}

	cmdLine, err := resolveCommandLine(f, args)
	if err != nil {
		fmt.Fprintf(stderr, "substrate: %v\n", err)
		return &exitError{code: 2}
	}
	if cmdLine == "" {
		return runInteractive(f, stdout, stderr)
	}
	return runExecute(f, cmdLine, stdout, stderr)
}

func resolveCommandLine(f topFlags, args []string) (string, error) {
	if f.cmdLine != "" && f.scriptPath != "" {
		return "", fmt.Errorf("-c and -f are mutually exclusive")
	}
	if f.cmdLine != "" {
		return f.cmdLine, nil
	}
	if f.scriptPath != "" {
		data, err := os.ReadFile(f.scriptPath)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", f.scriptPath, err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return joinArgsAsCommand(args), nil
	}
	return "", nil
}

func joinArgsAsCommand(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func printVersionJSON(stdout io.Writer) error {
	fp, _ := shimrun.Fingerprint()
	enc := json.NewEncoder(stdout)
	return enc.Encode(map[string]string{
		"version":     version,
		"commit":      commit,
		"fingerprint": fp,
	})
}

func doShowSpan(spanID string, verbose bool, stdout, stderr io.Writer) error {
	path := tracePathFromEnv()
	span, err := trace.LoadSpan(path, spanID)
	if err != nil {
		fmt.Fprintf(stderr, "substrate: loading span %s: %v\n", spanID, err)
		return &exitError{code: 1}
	}
	if verbose {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(span)
	}
	fmt.Fprintf(stdout, "%s %s %s exit=%v cmd=%q\n", span.SpanID, span.EventType, span.Component, exitOf(span.Exit), span.Cmd)
	return nil
}

func exitOf(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func tracePathFromEnv() string {
	if v := os.Getenv("SHIM_TRACE_LOG"); v != "" {
		return v
	}
	return os.ExpandEnv("$HOME/.substrate/trace.jsonl")
}

func effectiveConfigForCLI(f topFlags) config.Effective {
	global, _ := config.LoadGlobalConfig(os.ExpandEnv("$HOME/.substrate/config.toml"))
	workspace, _ := config.LoadWorkspaceConfig(".substrate/workspace.yaml")
	override := config.OverrideLayerFromEnv()
	eff := config.Resolve(global, override, workspace)

	if f.caged {
		eff.Caged = true
	}
	if f.uncaged {
		eff.Caged = false
	}
	if f.anchorMode != "" {
		eff.AnchorMode = config.AnchorMode(f.anchorMode)
	}
	if f.anchorPath != "" {
		eff.AnchorPath = f.anchorPath
	}
	return eff
}
