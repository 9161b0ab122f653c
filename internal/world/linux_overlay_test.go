//go:build linux

package world

import (
	"os"
	"testing"

	"github.com/substrate-dev/substrate/internal/policy"
)

func TestStep3BuildOverlayRootFullSkipsScopedLower(t *testing.T) {
	base := t.TempDir()
	layout := newOverlayLayout(base, "full-session")
	cfg := newDefaultLinuxConfig()
	report := &IsolationReport{}

	if ok := step3BuildOverlayRoot(cfg, layout, false, policy.IsolationFull, "", report); !ok {
		t.Fatalf("step3BuildOverlayRoot failed: %+v", report.Steps)
	}
	if _, err := os.Stat(layout.lower); !os.IsNotExist(err) {
		t.Fatalf("expected no scoped lowerdir under full isolation, got err=%v", err)
	}
	if _, err := os.Stat(layout.merged); err != nil {
		t.Fatalf("expected merged dir to exist: %v", err)
	}
}

func TestStep3BuildOverlayRootWorkspaceBuildsScopedLower(t *testing.T) {
	base := t.TempDir()
	layout := newOverlayLayout(base, "workspace-session")
	cfg := newDefaultLinuxConfig()
	report := &IsolationReport{}

	if ok := step3BuildOverlayRoot(cfg, layout, false, policy.IsolationWorkspace, "", report); !ok {
		t.Fatalf("step3BuildOverlayRoot failed: %+v", report.Steps)
	}
	if _, err := os.Stat(layout.lower); err != nil {
		t.Fatalf("expected scoped lowerdir under workspace isolation: %v", err)
	}
}
