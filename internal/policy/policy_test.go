package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRejectsLegacyWorldFsMode(t *testing.T) {
	doc := []byte(`
id: p
name: p
world_fs_mode: writable
`)
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error for legacy world_fs_mode key")
	}
}

func TestParseRejectsMissingWorldFs(t *testing.T) {
	doc := []byte(`
id: p
name: p
cmd_denied: ["rm*"]
`)
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error for missing world_fs block")
	}
	if got := err.Error(); !strings.Contains(got, "missing required policy block: world_fs") || !strings.Contains(got, "example:") {
		t.Fatalf("expected actionable message with example, got: %s", got)
	}
}

func TestParseValidPolicy(t *testing.T) {
	doc := []byte(`
id: s1
name: S1
world_fs:
  mode: writable
  isolation: workspace
  require_world: false
  read_allowlist: ["*"]
  write_allowlist: []
cmd_denied: ["echo*"]
`)
	p, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.WorldFS.Mode != FsModeWritable {
		t.Fatalf("unexpected mode: %s", p.WorldFS.Mode)
	}
	if len(p.CmdDenied) != 1 || p.CmdDenied[0] != "echo*" {
		t.Fatalf("unexpected cmd_denied: %v", p.CmdDenied)
	}
}

func TestReadOnlyImpliesRequireWorld(t *testing.T) {
	doc := []byte(`
id: s
name: s
world_fs:
  mode: read_only
  isolation: workspace
  require_world: false
  read_allowlist: ["*"]
`)
	p, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.WorldFS.RequireWorld {
		t.Fatal("read_only mode should imply require_world=true")
	}
}

func TestFullIsolationImpliesRequireWorld(t *testing.T) {
	doc := []byte(`
id: s
name: s
world_fs:
  mode: writable
  isolation: full
  require_world: false
  read_allowlist: ["*"]
`)
	p, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.WorldFS.RequireWorld {
		t.Fatal("full isolation should imply require_world=true")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFallsBackToDefaultsWhenNoPolicyExists(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(dir, filepath.Join(dir, "home-does-not-exist"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.WorldFS.Mode != FsModeWritable {
		t.Fatalf("expected default writable mode, got %s", p.WorldFS.Mode)
	}
	if p.RequireApproval {
		t.Fatal("expected default require_approval=false")
	}
}

func TestLoadPrefersWorkspaceOverGlobal(t *testing.T) {
	workspace := t.TempDir()
	home := t.TempDir()

	mustWritePolicy(t, filepath.Join(workspace, ".substrate"), "workspace-policy")
	mustWritePolicy(t, filepath.Join(home, ".substrate"), "global-policy")

	p, err := Load(workspace, home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "workspace-policy" {
		t.Fatalf("expected workspace policy to win, got %s", p.Name)
	}
}

func mustWritePolicy(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := "id: " + name + "\nname: " + name + "\nworld_fs:\n  mode: writable\n  isolation: workspace\n  require_world: false\n  read_allowlist: [\"*\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "policy.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
