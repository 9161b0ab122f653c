//go:build linux

package world

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// step1UserMappingOnly writes the 0<->host_uid mapping for a user
// namespace that the parent process already created via
// SysProcAttr.Cloneflags (CLONE_NEWUSER applies at fork/exec time, before
// this child's own code runs, so there's nothing left to unshare here).
func step1UserMappingOnly(report *IsolationReport) bool {
	hostUID := os.Getuid()
	hostGID := os.Getgid()

	if err := os.WriteFile("/proc/self/setgroups", []byte("deny"), 0o644); err != nil {
		report.record("user_namespace", false, fmt.Sprintf("disable setgroups: %v", err))
		return false
	}
	if err := os.WriteFile("/proc/self/uid_map", []byte(fmt.Sprintf("0 %d 1\n", hostUID)), 0o644); err != nil {
		report.record("user_namespace", false, fmt.Sprintf("write uid_map: %v", err))
		return false
	}
	if err := os.WriteFile("/proc/self/gid_map", []byte(fmt.Sprintf("0 %d 1\n", hostGID)), 0o644); err != nil {
		report.record("user_namespace", false, fmt.Sprintf("write gid_map: %v", err))
		return false
	}

	report.record("user_namespace", true, "")
	return true
}

// step2MountNamespace makes the whole mount tree private+recursive so
// later bind mounts and the pivot_root never propagate back to the host.
// The mount namespace itself was already created by the parent's
// SysProcAttr.Cloneflags (CLONE_NEWNS) at fork/exec time.
func step2MountNamespace(report *IsolationReport) bool {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		report.record("mount_namespace", false, fmt.Sprintf("remount private: %v", err))
		return false
	}
	report.record("mount_namespace", true, "")
	return true
}

// step8NetworkNamespace optionally unshares a new network namespace,
// leaving only loopback reachable. Failure here is a warning, not a
// degrade-the-whole-world condition: network isolation is best-effort.
func step8NetworkNamespace(report *IsolationReport, isolate bool) {
	if !isolate {
		report.record("network_namespace", false, "not requested")
		return
	}
	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		report.record("network_namespace", false, fmt.Sprintf("unshare(CLONE_NEWNET): %v", err))
		return
	}
	report.record("network_namespace", true, "")
}
