package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGlobalConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadGlobalConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultGlobalConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadGlobalConfigParsesToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[install]
world_enabled = true

[world]
anchor_mode = "custom"
anchor_path = "/srv/substrate-root"
caged = false
`)

	cfg, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Install.WorldEnabled {
		t.Fatal("expected world_enabled=true")
	}
	if cfg.World.AnchorMode != AnchorCustom {
		t.Fatalf("expected anchor_mode=custom, got %q", cfg.World.AnchorMode)
	}
	if cfg.World.AnchorPath != "/srv/substrate-root" {
		t.Fatalf("unexpected anchor_path %q", cfg.World.AnchorPath)
	}
	if cfg.World.Caged {
		t.Fatal("expected caged=false")
	}
}

func TestLoadWorkspaceConfigMissingFileYieldsZeroValue(t *testing.T) {
	cfg, err := LoadWorkspaceConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != (WorkspaceConfig{}) {
		t.Fatalf("expected zero value, got %+v", cfg)
	}
}

func TestLoadWorkspaceConfigParsesYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.yaml")
	writeFile(t, path, "policy_mode: observe\ncaged: false\n")

	cfg, err := LoadWorkspaceConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PolicyMode == nil || *cfg.PolicyMode != PolicyModeObserve {
		t.Fatalf("expected policy_mode=observe, got %+v", cfg.PolicyMode)
	}
	if cfg.Caged == nil || *cfg.Caged {
		t.Fatalf("expected caged=false, got %+v", cfg.Caged)
	}
	if cfg.AnchorMode != nil {
		t.Fatalf("expected anchor_mode unset, got %+v", cfg.AnchorMode)
	}
}

func TestOverrideLayerFromEnvOnlyReadsOverridePrefixedVars(t *testing.T) {
	t.Setenv("SUBSTRATE_OVERRIDE_POLICY_MODE", "observe")
	t.Setenv("SUBSTRATE_OVERRIDE_CAGED", "false")
	t.Setenv("SUBSTRATE_POLICY_MODE", "enforce") // legacy bare var, must be ignored
	t.Setenv("SUBSTRATE_OVERRIDE_ANCHOR_MODE", "")
	t.Setenv("SUBSTRATE_OVERRIDE_ANCHOR_PATH", "")

	o := OverrideLayerFromEnv()
	if o.PolicyMode == nil || *o.PolicyMode != PolicyModeObserve {
		t.Fatalf("expected override policy_mode=observe, got %+v", o.PolicyMode)
	}
	if o.Caged == nil || *o.Caged {
		t.Fatalf("expected override caged=false, got %+v", o.Caged)
	}
	if o.AnchorMode != nil {
		t.Fatalf("expected anchor_mode unset for empty var, got %+v", o.AnchorMode)
	}
	if o.AnchorPath != nil {
		t.Fatalf("expected anchor_path unset for empty var, got %+v", o.AnchorPath)
	}
}

func TestResolvePrecedenceWorkspaceBeatsOverrideBeatsGlobal(t *testing.T) {
	global := DefaultGlobalConfig()
	global.World.AnchorMode = AnchorProject
	global.World.Caged = true

	overrideAnchor := AnchorFollowCwd
	overridePolicy := PolicyModeObserve
	override := OverrideLayer{AnchorMode: &overrideAnchor, PolicyMode: &overridePolicy}

	workspaceAnchor := AnchorCustom
	workspace := WorkspaceConfig{AnchorMode: &workspaceAnchor}

	eff := Resolve(global, override, workspace)

	if eff.AnchorMode != AnchorCustom {
		t.Fatalf("expected workspace anchor_mode to win, got %q", eff.AnchorMode)
	}
	if eff.PolicyMode != PolicyModeObserve {
		t.Fatalf("expected override policy_mode to win over global, got %q", eff.PolicyMode)
	}
	if !eff.Caged {
		t.Fatalf("expected global caged=true to survive untouched, got %v", eff.Caged)
	}
}

func TestResolveDefaultsToEnforceWithNoOverrides(t *testing.T) {
	eff := Resolve(DefaultGlobalConfig(), OverrideLayer{}, WorkspaceConfig{})
	if eff.PolicyMode != PolicyModeEnforce {
		t.Fatalf("expected enforce by default, got %q", eff.PolicyMode)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
