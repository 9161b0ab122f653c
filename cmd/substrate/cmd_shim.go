package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/shimrun"
)

func newShimCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shim",
		Short: "Diagnose and repair PATH-front shim installation",
	}
	cmd.AddCommand(newShimDoctorCmd(stdout, stderr), newShimRepairCmd(stdout, stderr))
	return cmd
}

func newShimDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check deployed shims against the currently running binary's fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return doShimStatus(false, stdout, stderr)
		},
	}
}

func newShimRepairCmd(stdout, stderr io.Writer) *cobra.Command {
	var manager int
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Re-deploy shims that don't match the current fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !assumeYes {
				fmt.Fprintf(stdout, "this will overwrite stale shims under ~/.substrate/shims; re-run with -y to confirm\n")
				return nil
			}
			return doShimRepair(manager, stdout, stderr)
		},
	}
	cmd.Flags().IntVar(&manager, "manager", 0, "PATH manager strategy index (see manager_env.sh); 0 selects the detected default")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "don't prompt before overwriting")
	return cmd
}

func doShimRepair(manager int, stdout, stderr io.Writer) error {
	_ = manager // manager selection only affects how PATH gets edited, which substrate-install's generated manager_env.sh owns; repair only re-copies shim bytes.
	fp, err := shimrun.Fingerprint()
	if err != nil {
		fmt.Fprintf(stderr, "substrate shim repair: %v\n", err)
		return &exitError{code: 1}
	}
	if err := doShimDeploy(stdout, stderr); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "shims now match fingerprint %s\n", fp)
	return nil
}
