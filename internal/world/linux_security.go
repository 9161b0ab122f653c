//go:build linux

package world

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// step9Security applies, in order, the last line of defense: best-effort
// capability drop, mandatory PR_SET_NO_NEW_PRIVS, a log-only seccomp
// baseline, and a Landlock ruleset scoped to the policy's allowlists.
// Each sub-step degrades independently; only PR_SET_NO_NEW_PRIVS failure
// is treated as a hard stop, since every later seccomp/Landlock install
// depends on it being set first.
func step9Security(readAllow, writeAllow []string, report *IsolationReport) error {
	dropCapabilities(report)

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		report.record("no_new_privs", false, err.Error())
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	report.record("no_new_privs", true, "")

	installSeccompBaseline(report)
	installLandlock(readAllow, writeAllow, report)

	return nil
}

// dropCapabilities clears the full capability set via prctl(PR_CAPBSET_DROP)
// over the bounding set. Best effort: a namespaced process usually already
// has an empty effective set once CAP_SYS_ADMIN etc. are absent from its
// user namespace, so failures here are recorded but non-fatal.
func dropCapabilities(report *IsolationReport) {
	const capLastCap = 40 // highest capability number as of recent kernels
	dropped := true
	for cap := 0; cap <= capLastCap; cap++ {
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(cap), 0, 0, 0); err != nil {
			dropped = false
		}
	}
	if dropped {
		report.record("capability_drop", true, "")
	} else {
		report.record("capability_drop", false, "some capabilities could not be dropped from bounding set")
	}
}

// seccompLoggedSyscalls are the syscalls the baseline filter flags via
// SECCOMP_RET_LOG rather than blocking outright — log-only, matching the
// spec's "baseline (log-only)" posture rather than an enforcing denylist.
var seccompLoggedSyscalls = []string{
	"mount", "umount2", "pivot_root", "keyctl", "perf_event_open", "bpf",
}

// installSeccompBaseline installs a minimal BPF program that traps the
// syscalls in seccompLoggedSyscalls into SECCOMP_RET_LOG while returning
// SECCOMP_RET_ALLOW for everything else. The classic BPF program is built
// in-process by buildSeccompLogProgram and installed with
// prctl(PR_SET_SECCOMP); the step is recorded as applied only when that
// prctl call succeeds.
func installSeccompBaseline(report *IsolationReport) {
	prog, err := buildSeccompLogProgram(seccompLoggedSyscalls)
	if err != nil {
		report.record("seccomp_baseline", false, err.Error())
		return
	}
	if err := unix.Prctl(unix.PR_SET_SECCOMP, seccompModeFilter, uintptr(unsafe.Pointer(prog)), 0, 0); err != nil {
		report.record("seccomp_baseline", false, err.Error())
		return
	}
	report.record("seccomp_baseline", true, "")
}

// landlockAccessFS mirrors the LANDLOCK_ACCESS_FS_* bit values (UAPI
// constants not yet exposed by golang.org/x/sys/unix on all supported
// Go toolchains, so they are defined locally).
const (
	landlockAccessFSExecute    = 1 << 0
	landlockAccessFSReadFile   = 1 << 2
	landlockAccessFSReadDir    = 1 << 3
	landlockAccessFSWriteFile  = 1 << 1
	landlockAccessFSRemoveDir  = 1 << 4
	landlockAccessFSRemoveFile = 1 << 5
	landlockAccessFSMakeChar   = 1 << 6
	landlockAccessFSMakeDir    = 1 << 7
	landlockAccessFSMakeReg    = 1 << 8
	landlockAccessFSMakeSock   = 1 << 9
	landlockAccessFSMakeFifo   = 1 << 10
	landlockAccessFSMakeBlock  = 1 << 11
	landlockAccessFSMakeSym    = 1 << 12
	landlockAccessFSRefer      = 1 << 13 // ABI >= 2
	landlockAccessFSTruncate   = 1 << 14 // ABI >= 3
)

const (
	landlockReadMask  = landlockAccessFSExecute | landlockAccessFSReadFile | landlockAccessFSReadDir
	landlockWriteMask = landlockAccessFSWriteFile | landlockAccessFSRemoveDir | landlockAccessFSRemoveFile |
		landlockAccessFSMakeChar | landlockAccessFSMakeDir | landlockAccessFSMakeReg |
		landlockAccessFSMakeSock | landlockAccessFSMakeFifo | landlockAccessFSMakeBlock |
		landlockAccessFSMakeSym | landlockAccessFSRefer | landlockAccessFSTruncate
)

// installLandlock creates a ruleset restricting filesystem access to the
// given allowlists: read (plus execute/readdir) rules for readAllow,
// full write rules for writeAllow, then calls landlock_restrict_self.
// Absence of Landlock support (pre-5.13 kernel, or disabled at build
// time) degrades to a warning per this package's Open Question decision:
// cage mode without Landlock is never a hard failure.
func installLandlock(readAllow, writeAllow []string, report *IsolationReport) {
	abi, err := landlockABIVersion()
	if err != nil || abi < 1 {
		report.record("landlock", false, "landlock unsupported by running kernel")
		return
	}

	rulesetFd, err := landlockCreateRuleset(abi)
	if err != nil {
		report.record("landlock", false, fmt.Sprintf("create ruleset: %v", err))
		return
	}
	defer unix.Close(rulesetFd)

	added := 0
	for _, p := range readAllow {
		if err := landlockAddPathRule(rulesetFd, p, landlockReadMask); err == nil {
			added++
		}
	}
	for _, p := range writeAllow {
		mask := landlockWriteMask
		if abi < 2 {
			mask &^= landlockAccessFSRefer
		}
		if abi < 3 {
			mask &^= landlockAccessFSTruncate
		}
		if err := landlockAddPathRule(rulesetFd, p, mask); err == nil {
			added++
		}
	}

	if err := landlockRestrictSelf(rulesetFd); err != nil {
		report.record("landlock", false, fmt.Sprintf("restrict_self: %v", err))
		return
	}

	report.record("landlock", true, fmt.Sprintf("%d rules added (abi %d)", added, abi))
}
