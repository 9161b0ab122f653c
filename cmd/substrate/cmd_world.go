package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/world"
)

func newWorldCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Manage the world isolation backend",
	}
	cmd.AddCommand(
		newWorldDoctorCmd(stdout, stderr),
		newWorldEnableCmd(stdout, stderr),
		newWorldDepsCmd(stdout, stderr),
		newWorldCleanupCmd(stdout, stderr),
	)
	return cmd
}

// worldSpecFromPolicy loads the layered policy the same way runExecute
// does and builds the ensure_session spec `world enable`/`world deps` use
// to warm up or probe the backend, so those commands exercise the same
// Landlock allowlists and isolation mode a real command would.
func worldSpecFromPolicy() world.Spec {
	pol, err := policy.Load(".", os.ExpandEnv("$HOME/.substrate"))
	if err != nil {
		pol = policy.Default()
	}
	return world.Spec{
		ReuseSession:   true,
		FsMode:         policy.FsModeWritable,
		Isolation:      pol.WorldFS.Isolation,
		ReadAllowlist:  pol.WorldFS.ReadAllowlist,
		WriteAllowlist: pol.WorldFS.WriteAllowlist,
	}
}

func newWorldDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check whether the world backend can serve ensure_session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			backend := world.NewBackend()
			if backend.Ready() {
				fmt.Fprintln(stdout, "world backend: ready")
				return nil
			}
			fmt.Fprintln(stdout, "world backend: not ready")
			return &exitError{code: 1}
		},
	}
}

func newWorldEnableCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn on world_enabled in the global config and verify the backend comes up",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := globalConfigPath()
			global, err := loadOrDefaultGlobal(path)
			if err != nil {
				fmt.Fprintf(stderr, "substrate world enable: %v\n", err)
				return &exitError{code: 1}
			}
			global.Install.WorldEnabled = true
			if err := writeGlobalConfig(path, global); err != nil {
				fmt.Fprintf(stderr, "substrate world enable: %v\n", err)
				return &exitError{code: 1}
			}

			backend := world.NewBackend()
			ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
			defer cancel()
			if _, _, err := backend.EnsureSession(ctx, worldSpecFromPolicy()); err != nil {
				fmt.Fprintf(stderr, "substrate world enable: backend did not come up: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintln(stdout, "world enabled")
			return nil
		},
	}
}

func newWorldDepsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "List the isolation primitives this platform's world backend reports",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			backend := world.NewBackend()
			ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
			defer cancel()
			_, report, err := backend.EnsureSession(ctx, worldSpecFromPolicy())
			if err != nil {
				fmt.Fprintf(stderr, "substrate world deps: %v\n", err)
				return &exitError{code: 1}
			}
			if report == nil || len(report.Steps) == 0 {
				fmt.Fprintln(stdout, "(no isolation steps reported)")
				return nil
			}
			for _, step := range report.Steps {
				status := "ok"
				if !step.Applied {
					status = "skipped"
				}
				fmt.Fprintf(stdout, "  %-20s %s\n", step.Step, status)
			}
			return nil
		},
	}
}

func newWorldCleanupCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the workspace's persisted world selection state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := ".substrate/world-deps.selection.yaml"
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(stderr, "substrate world cleanup: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintln(stdout, "world state cleaned")
			return nil
		},
	}
}
