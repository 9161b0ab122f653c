package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/substrate-dev/substrate/internal/config"
)

func newConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit ~/.substrate/config.toml",
	}
	cmd.AddCommand(newConfigInitCmd(stdout, stderr), newConfigShowCmd(stdout, stderr), newConfigSetCmd(stdout, stderr))
	return cmd
}

func globalConfigPath() string { return os.ExpandEnv("$HOME/.substrate/config.toml") }

func newConfigInitCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.toml if one doesn't already exist",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := globalConfigPath()
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(stdout, "%s already exists\n", path)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				fmt.Fprintf(stderr, "substrate config init: %v\n", err)
				return &exitError{code: 1}
			}
			f, err := os.Create(path)
			if err != nil {
				fmt.Fprintf(stderr, "substrate config init: %v\n", err)
				return &exitError{code: 1}
			}
			defer f.Close()
			if err := toml.NewEncoder(f).Encode(config.DefaultGlobalConfig()); err != nil {
				fmt.Fprintf(stderr, "substrate config init: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintf(stdout, "wrote %s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (global + override env + workspace)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			global, err := config.LoadGlobalConfig(globalConfigPath())
			if err != nil {
				fmt.Fprintf(stderr, "substrate config show: %v\n", err)
				return &exitError{code: 1}
			}
			workspace, err := config.LoadWorkspaceConfig(".substrate/workspace.yaml")
			if err != nil {
				fmt.Fprintf(stderr, "substrate config show: %v\n", err)
				return &exitError{code: 1}
			}
			eff := config.Resolve(global, config.OverrideLayerFromEnv(), workspace)
			fmt.Fprintf(stdout, "policy_mode  = %s\n", eff.PolicyMode)
			fmt.Fprintf(stdout, "anchor_mode  = %s\n", eff.AnchorMode)
			fmt.Fprintf(stdout, "anchor_path  = %s\n", eff.AnchorPath)
			fmt.Fprintf(stdout, "caged        = %v\n", eff.Caged)
			fmt.Fprintf(stdout, "world_fs_mode= %s\n", eff.WorldFsMode)
			return nil
		},
	}
}

func newConfigSetCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one key in ~/.substrate/config.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			path := globalConfigPath()
			global, err := config.LoadGlobalConfig(path)
			if err != nil {
				fmt.Fprintf(stderr, "substrate config set: %v\n", err)
				return &exitError{code: 1}
			}
			if err := applyConfigSet(&global, args[0], args[1]); err != nil {
				fmt.Fprintf(stderr, "substrate config set: %v\n", err)
				return &exitError{code: 2}
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				fmt.Fprintf(stderr, "substrate config set: %v\n", err)
				return &exitError{code: 1}
			}
			f, err := os.Create(path)
			if err != nil {
				fmt.Fprintf(stderr, "substrate config set: %v\n", err)
				return &exitError{code: 1}
			}
			defer f.Close()
			if err := toml.NewEncoder(f).Encode(global); err != nil {
				fmt.Fprintf(stderr, "substrate config set: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintf(stdout, "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func applyConfigSet(global *config.GlobalConfig, key, value string) error {
	switch key {
	case "world.anchor_mode":
		global.World.AnchorMode = config.AnchorMode(value)
	case "world.anchor_path":
		global.World.AnchorPath = value
	case "world.caged":
		global.World.Caged = value == "true"
	case "install.world_enabled":
		global.Install.WorldEnabled = value == "true"
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
