// Package policy loads and validates Substrate policy documents: the
// layered workspace/global/default YAML that the broker evaluates every
// command against.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FsMode controls whether a world's filesystem is writable or read-only.
type FsMode string

const (
	FsModeWritable FsMode = "writable"
	FsModeReadOnly FsMode = "read_only"
)

// Isolation controls how much of the host root is bound into a world.
type Isolation string

const (
	IsolationWorkspace Isolation = "workspace"
	IsolationProject   Isolation = "project" // alias for workspace
	IsolationFull      Isolation = "full"
)

// WorldFS is the mandatory block describing a policy's filesystem posture.
type WorldFS struct {
	Mode           FsMode    `yaml:"mode"`
	Isolation      Isolation `yaml:"isolation"`
	RequireWorld   bool      `yaml:"require_world"`
	ReadAllowlist  []string  `yaml:"read_allowlist"`
	WriteAllowlist []string  `yaml:"write_allowlist"`
}

// Limits are optional resource caps applied to a world session.
type Limits struct {
	MaxMemoryMB   *int64 `yaml:"max_memory_mb,omitempty"`
	MaxCPUPercent *int   `yaml:"max_cpu_percent,omitempty"`
	MaxRuntimeMs  *int64 `yaml:"max_runtime_ms,omitempty"`
	MaxEgressBytes *int64 `yaml:"max_egress_bytes,omitempty"`
}

// Policy describes what a command is allowed to do. Loaded from
// .substrate/policy.yaml (workspace) or ~/.substrate/policy.yaml (global).
type Policy struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	WorldFS WorldFS `yaml:"world_fs"`

	NetAllowed []string `yaml:"net_allowed"`

	CmdAllowed  []string `yaml:"cmd_allowed"`
	CmdDenied   []string `yaml:"cmd_denied"`
	CmdIsolated []string `yaml:"cmd_isolated"`

	RequireApproval     bool `yaml:"require_approval"`
	AllowShellOperators bool `yaml:"allow_shell_operators"`

	Limits Limits `yaml:"limits"`

	Metadata map[string]string `yaml:"metadata"`
}

// rawPolicy is not used by Parse, which decodes into a map[string]any to
// reject the legacy world_fs_mode top-level key and a missing world_fs
// block; other unrecognised keys are ignored.
type rawPolicy map[string]yaml.Node

// Default returns the zero-config policy: empty lists, writable fs,
// require_world=false — used when no policy file exists at all.
func Default() *Policy {
	return &Policy{
		ID:   "default",
		Name: "default",
		WorldFS: WorldFS{
			Mode:         FsModeWritable,
			Isolation:    IsolationWorkspace,
			RequireWorld: false,
		},
		AllowShellOperators: true,
	}
}

// LoadFile parses and validates a policy YAML file at path. On any
// validation failure it returns an error without mutating any existing
// in-memory policy; the loader never partially applies a bad document.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes a policy document from raw YAML bytes.
func Parse(data []byte) (*Policy, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy: invalid yaml: %w", err)
	}

	if _, ok := raw["world_fs_mode"]; ok {
		return nil, fmt.Errorf("legacy policy key 'world_fs_mode' rejected; use world_fs.mode")
	}

	if _, ok := raw["world_fs"]; !ok {
		return nil, fmt.Errorf("missing required policy block: world_fs\nexample:\nworld_fs:\n  mode: writable\n  isolation: workspace\n  require_world: false\n  read_allowlist: [\"*\"]\n  write_allowlist: []")
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("policy: invalid yaml: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate enforces the invariants the loader must reject violations of.
func (p *Policy) Validate() error {
	switch p.WorldFS.Mode {
	case FsModeWritable, FsModeReadOnly:
	case "":
		return fmt.Errorf("missing required policy block: world_fs\nexample:\nworld_fs:\n  mode: writable\n  isolation: workspace\n  require_world: false\n  read_allowlist: [\"*\"]\n  write_allowlist: []")
	default:
		return fmt.Errorf("invalid world_fs.mode %q; valid values: writable, read_only", p.WorldFS.Mode)
	}

	switch p.WorldFS.Isolation {
	case IsolationWorkspace, IsolationProject, IsolationFull, "":
	default:
		return fmt.Errorf("invalid world_fs.isolation %q; valid values: workspace, project, full", p.WorldFS.Isolation)
	}

	// Invariant: read_only implies require_world.
	if p.WorldFS.Mode == FsModeReadOnly {
		p.WorldFS.RequireWorld = true
	}
	// Invariant: full isolation implies require_world.
	if p.WorldFS.Isolation == IsolationFull {
		p.WorldFS.RequireWorld = true
	}

	if len(p.WorldFS.ReadAllowlist) == 0 {
		return fmt.Errorf("world_fs.read_allowlist must be non-empty")
	}

	return nil
}

// Load implements the layered lookup order: workspace .substrate/policy.yaml
// -> global ~/.substrate/policy.yaml -> legacy .substrate-profile discovery
// -> compiled-in defaults. workspaceDir and homeDir may be empty to skip
// that tier.
func Load(workspaceDir, homeDir string) (*Policy, error) {
	if workspaceDir != "" {
		p := fmt.Sprintf("%s/.substrate/policy.yaml", workspaceDir)
		if fileExists(p) {
			return LoadFile(p)
		}
	}
	if homeDir != "" {
		p := fmt.Sprintf("%s/.substrate/policy.yaml", homeDir)
		if fileExists(p) {
			return LoadFile(p)
		}
	}
	if workspaceDir != "" {
		if path, ok := DiscoverProfile(workspaceDir, homeDir); ok {
			return LoadFile(path)
		}
	}
	return Default(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
