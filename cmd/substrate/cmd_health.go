package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/world"
)

func newHealthCmd(stdout, stderr io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report whether policy, world, and trace state all look sane",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return doHealth(asJSON, stdout, stderr)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	return cmd
}

type healthReport struct {
	PolicyLoaded bool   `json:"policy_loaded"`
	WorldReady   bool   `json:"world_ready"`
	TraceWritable bool  `json:"trace_writable"`
	Detail       string `json:"detail,omitempty"`
}

func doHealth(asJSON bool, stdout, stderr io.Writer) error {
	report := healthReport{}

	if _, err := policy.Load(".", os.ExpandEnv("$HOME/.substrate")); err == nil {
		report.PolicyLoaded = true
	} else {
		report.Detail = err.Error()
	}

	report.WorldReady = world.NewBackend().Ready()

	if f, err := os.OpenFile(tracePathFromEnv(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		report.TraceWritable = true
		f.Close()
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		return enc.Encode(report)
	}

	fmt.Fprintf(stdout, "policy:  %s\n", boolStatus(report.PolicyLoaded))
	fmt.Fprintf(stdout, "world:   %s\n", boolStatus(report.WorldReady))
	fmt.Fprintf(stdout, "trace:   %s\n", boolStatus(report.TraceWritable))
	if !report.PolicyLoaded && !report.WorldReady && !report.TraceWritable {
		return &exitError{code: 1}
	}
	return nil
}

func boolStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
