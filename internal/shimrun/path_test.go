package shimrun

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildCleanSearchPathDropsShimDirAndDuplicates(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	shimDir := t.TempDir()

	raw := dirA + string(os.PathListSeparator) +
		shimDir + string(os.PathListSeparator) +
		dirA + string(os.PathListSeparator) +
		dirB

	got, err := BuildCleanSearchPath(raw, shimDir)
	if err != nil {
		t.Fatalf("BuildCleanSearchPath: %v", err)
	}
	want := []string{dirA, dirB}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildCleanSearchPathEmptyIsError(t *testing.T) {
	t.Setenv("PATH", "")
	_, err := BuildCleanSearchPath("", "/nonexistent-shim-dir")
	if err == nil {
		t.Fatal("expected error when PATH is also empty")
	}
}

func TestResolveRealBinaryLiteralPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mytool")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ResolveRealBinary(bin, nil)
	if err != nil {
		t.Fatalf("ResolveRealBinary: %v", err)
	}
	if got != bin {
		t.Fatalf("got %s, want %s", got, bin)
	}
}

func TestResolveRealBinaryPathScanFirstHitWins(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	bin2 := filepath.Join(dir2, "tool")
	if err := os.WriteFile(bin2, []byte("x"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ResolveRealBinary("tool", []string{dir1, dir2})
	if err != nil {
		t.Fatalf("ResolveRealBinary: %v", err)
	}
	if got != bin2 {
		t.Fatalf("got %s, want %s", got, bin2)
	}
}

func TestResolveRealBinaryNotFound(t *testing.T) {
	_, err := ResolveRealBinary("does-not-exist-anywhere", []string{t.TempDir()})
	if err == nil {
		t.Fatal("expected error for unresolvable command")
	}
}
