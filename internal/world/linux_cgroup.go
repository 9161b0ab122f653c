//go:build linux

package world

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/substrate-dev/substrate/internal/policy"
	"golang.org/x/sys/unix"
)

// step7Cgroup mounts cgroup v2 if it isn't already present, creates a
// leaf cgroup for this session, attaches the current process to it, and
// writes memory.max/cpu.max from the policy's resource limits. Absence
// of cgroup v2 support is a warning, not a failure — the world still
// runs, just without enforced resource caps.
func step7Cgroup(cfg *linuxConfig, sessionID string, limits policy.Limits, report *IsolationReport) bool {
	if _, err := os.Stat(filepath.Join(cfg.cgroupRoot, "cgroup.controllers")); err != nil {
		if mountErr := unix.Mount("cgroup2", cfg.cgroupRoot, "cgroup2", 0, ""); mountErr != nil {
			report.record("cgroup", false, fmt.Sprintf("cgroup2 unavailable: %v", mountErr))
			return false
		}
	}

	leaf := filepath.Join(cfg.cgroupRoot, "substrate-"+sessionID)
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		report.record("cgroup", false, fmt.Sprintf("create leaf: %v", err))
		return false
	}

	if err := os.WriteFile(filepath.Join(leaf, "cgroup.procs"), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		report.record("cgroup", false, fmt.Sprintf("attach leaf: %v", err))
		return false
	}

	if limits.MaxMemoryMB != nil {
		bytes := *limits.MaxMemoryMB * 1024 * 1024
		_ = os.WriteFile(filepath.Join(leaf, "memory.max"), []byte(fmt.Sprintf("%d", bytes)), 0o644)
	}
	if limits.MaxCPUPercent != nil {
		quota := *limits.MaxCPUPercent * 1000
		_ = os.WriteFile(filepath.Join(leaf, "cpu.max"), []byte(fmt.Sprintf("%d 100000", quota)), 0o644)
	}

	report.record("cgroup", true, "")
	return true
}
