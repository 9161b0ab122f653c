package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/trace"
)

func newGraphCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the causal graph recorded in the trace spine",
	}
	cmd.AddCommand(newGraphIngestCmd(stdout, stderr), newGraphStatusCmd(stdout, stderr), newGraphWhatChangedCmd(stdout, stderr))
	return cmd
}

type graphSummary struct {
	Spans           int `json:"spans"`
	CommandStarts   int `json:"command_starts"`
	CommandCompletes int `json:"command_completes"`
	PolicyViolations int `json:"policy_violations"`
	Edges           int `json:"edges"`
}

func scanTraceLog(path string) (graphSummary, error) {
	var s graphSummary
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var span trace.Span
		if err := json.Unmarshal(scanner.Bytes(), &span); err != nil {
			continue
		}
		s.Spans++
		s.Edges += len(span.GraphEdges)
		switch span.EventType {
		case trace.EventCommandStart:
			s.CommandStarts++
		case trace.EventCommandComplete:
			s.CommandCompletes++
		case trace.EventPolicyViolation:
			s.PolicyViolations++
		}
	}
	return s, scanner.Err()
}

func newGraphIngestCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Scan the trace log and report how many spans and edges it holds",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			summary, err := scanTraceLog(tracePathFromEnv())
			if err != nil {
				fmt.Fprintf(stderr, "substrate graph ingest: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintf(stdout, "ingested %d spans (%d edges)\n", summary.Spans, summary.Edges)
			return nil
		},
	}
}

func newGraphStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the trace log's current contents",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			summary, err := scanTraceLog(tracePathFromEnv())
			if err != nil {
				fmt.Fprintf(stderr, "substrate graph status: %v\n", err)
				return &exitError{code: 1}
			}
			if asJSON {
				return json.NewEncoder(stdout).Encode(summary)
			}
			fmt.Fprintf(stdout, "spans:              %d\n", summary.Spans)
			fmt.Fprintf(stdout, "command_start:      %d\n", summary.CommandStarts)
			fmt.Fprintf(stdout, "command_complete:    %d\n", summary.CommandCompletes)
			fmt.Fprintf(stdout, "policy_violation:    %d\n", summary.PolicyViolations)
			fmt.Fprintf(stdout, "graph_edges:         %d\n", summary.Edges)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	return cmd
}

func newGraphWhatChangedCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "what-changed SPAN_ID",
		Short: "Print the filesystem diff recorded for a span",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			span, err := trace.LoadSpan(tracePathFromEnv(), args[0])
			if err != nil {
				fmt.Fprintf(stderr, "substrate graph what-changed: %v\n", err)
				return &exitError{code: 1}
			}
			if span.FsDiff == nil {
				fmt.Fprintln(stdout, "(no filesystem diff recorded for this span)")
				return nil
			}
			for _, w := range span.FsDiff.Writes {
				fmt.Fprintf(stdout, "+ %s\n", w)
			}
			for _, m := range span.FsDiff.Mods {
				fmt.Fprintf(stdout, "~ %s\n", m)
			}
			for _, d := range span.FsDiff.Deletes {
				fmt.Fprintf(stdout, "- %s\n", d)
			}
			if span.FsDiff.Truncated {
				fmt.Fprintln(stdout, "(diff truncated)")
			}
			return nil
		},
	}
}
