// Package config loads Substrate's global and workspace configuration
// layers and the override-env layer, and resolves them into one
// effective configuration per spec.md §6.2's precedence rule: workspace
// config always wins over override env, which always wins over global
// config; legacy bare SUBSTRATE_* env vars are never consulted.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AnchorMode controls how a world session picks its bind-mount root.
type AnchorMode string

const (
	AnchorProject   AnchorMode = "project"
	AnchorFollowCwd AnchorMode = "follow-cwd"
	AnchorCustom    AnchorMode = "custom"
)

// PolicyMode is the broker's observe/enforce toggle, mirrored here so it
// can be set from config/env instead of only from CLI flags.
type PolicyMode string

const (
	PolicyModeEnforce PolicyMode = "enforce"
	PolicyModeObserve PolicyMode = "observe"
)

// GlobalConfig is ~/.substrate/config.toml: install-wide defaults applied
// before any workspace or override layer.
type GlobalConfig struct {
	Install struct {
		WorldEnabled bool `toml:"world_enabled"`
	} `toml:"install"`

	World struct {
		AnchorMode AnchorMode `toml:"anchor_mode"`
		AnchorPath string     `toml:"anchor_path"`
		Caged      bool       `toml:"caged"`
	} `toml:"world"`
}

// DefaultGlobalConfig matches an install that has never run `substrate
// config init`.
func DefaultGlobalConfig() GlobalConfig {
	cfg := GlobalConfig{}
	cfg.Install.WorldEnabled = false
	cfg.World.AnchorMode = AnchorProject
	cfg.World.Caged = true
	return cfg
}

// LoadGlobalConfig parses path as TOML. A missing file is not an error —
// it means the install has never run `substrate config init` — and
// yields DefaultGlobalConfig() instead.
func LoadGlobalConfig(path string) (GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return GlobalConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// WorkspaceConfig is <workspace>/.substrate/workspace.yaml: per-project
// overrides, preferred over the global config for every field it sets.
// Every field is a pointer so "unset" and "explicitly false/empty" are
// distinguishable during the merge in Effective.
type WorkspaceConfig struct {
	PolicyMode *PolicyMode `yaml:"policy_mode,omitempty"`
	AnchorMode *AnchorMode `yaml:"anchor_mode,omitempty"`
	AnchorPath *string     `yaml:"anchor_path,omitempty"`
	Caged      *bool       `yaml:"caged,omitempty"`
	WorldFsMode *string    `yaml:"world_fs_mode,omitempty"`
}

// LoadWorkspaceConfig parses path as YAML. A missing file is not an
// error — workspace.yaml is optional — and yields a zero WorkspaceConfig
// (every field unset) instead.
func LoadWorkspaceConfig(path string) (WorkspaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return WorkspaceConfig{}, nil
		}
		return WorkspaceConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg WorkspaceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkspaceConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// OverrideLayer is the SUBSTRATE_OVERRIDE_* env layer from spec.md §6.2.
// Legacy bare SUBSTRATE_{POLICY_MODE,...} vars are deliberately never
// read here; only the override-prefixed form participates in effective
// config.
type OverrideLayer struct {
	PolicyMode *PolicyMode
	AnchorMode *AnchorMode
	AnchorPath *string
	Caged      *bool
}

// OverrideLayerFromEnv reads the four SUBSTRATE_OVERRIDE_* vars, leaving
// a field nil when its var is unset or empty.
func OverrideLayerFromEnv() OverrideLayer {
	var o OverrideLayer
	if v, ok := nonEmptyEnv("SUBSTRATE_OVERRIDE_POLICY_MODE"); ok {
		m := PolicyMode(strings.ToLower(v))
		o.PolicyMode = &m
	}
	if v, ok := nonEmptyEnv("SUBSTRATE_OVERRIDE_ANCHOR_MODE"); ok {
		m := AnchorMode(strings.ToLower(v))
		o.AnchorMode = &m
	}
	if v, ok := nonEmptyEnv("SUBSTRATE_OVERRIDE_ANCHOR_PATH"); ok {
		o.AnchorPath = &v
	}
	if v, ok := nonEmptyEnv("SUBSTRATE_OVERRIDE_CAGED"); ok {
		b := !isFalsy(v)
		o.Caged = &b
	}
	return o
}

func nonEmptyEnv(key string) (string, bool) {
	v := os.Getenv(key)
	if v == "" {
		return "", false
	}
	return v, true
}

func isFalsy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "false" || v == "0" || v == "no"
}

// Effective is the fully resolved configuration a broker/world backend
// actually consumes: global, then override env, then workspace, each
// layer only replacing fields the layer above actually set.
type Effective struct {
	PolicyMode  PolicyMode
	AnchorMode  AnchorMode
	AnchorPath  string
	Caged       bool
	WorldFsMode string
}

// Resolve applies spec.md §6.2's precedence: workspace > override env >
// global. global is always fully populated (LoadGlobalConfig never
// leaves a field unset); override and workspace only replace what they
// explicitly set.
func Resolve(global GlobalConfig, override OverrideLayer, workspace WorkspaceConfig) Effective {
	eff := Effective{
		PolicyMode: PolicyModeEnforce,
		AnchorMode: global.World.AnchorMode,
		AnchorPath: global.World.AnchorPath,
		Caged:      global.World.Caged,
	}

	if override.PolicyMode != nil {
		eff.PolicyMode = *override.PolicyMode
	}
	if override.AnchorMode != nil {
		eff.AnchorMode = *override.AnchorMode
	}
	if override.AnchorPath != nil {
		eff.AnchorPath = *override.AnchorPath
	}
	if override.Caged != nil {
		eff.Caged = *override.Caged
	}

	if workspace.PolicyMode != nil {
		eff.PolicyMode = *workspace.PolicyMode
	}
	if workspace.AnchorMode != nil {
		eff.AnchorMode = *workspace.AnchorMode
	}
	if workspace.AnchorPath != nil {
		eff.AnchorPath = *workspace.AnchorPath
	}
	if workspace.Caged != nil {
		eff.Caged = *workspace.Caged
	}
	if workspace.WorldFsMode != nil {
		eff.WorldFsMode = *workspace.WorldFsMode
	}

	return eff
}
