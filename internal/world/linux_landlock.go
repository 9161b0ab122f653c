//go:build linux

package world

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock syscall numbers (x86_64). Not yet exposed as named constants
// in every supported golang.org/x/sys/unix release, so they are pinned
// here directly — these are stable ABI numbers, not kernel version
// dependent.
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446
)

const landlockRuleTypePathBeneath = 1

const landlockCreateRulesetVersion = 1 << 0

type landlockRulesetAttr struct {
	HandledAccessFS uint64
}

type landlockPathBeneathAttr struct {
	AllowedAccess uint64
	ParentFd      int32
}

// landlockABIVersion probes the running kernel's Landlock ABI version via
// landlock_create_ruleset(NULL, 0, LANDLOCK_CREATE_RULESET_VERSION).
func landlockABIVersion() (int, error) {
	r1, _, errno := unix.Syscall(sysLandlockCreateRuleset, 0, 0, landlockCreateRulesetVersion)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

func landlockCreateRuleset(abi int) (int, error) {
	mask := uint64(landlockReadMask | landlockWriteMask)
	if abi < 2 {
		mask &^= landlockAccessFSRefer
	}
	if abi < 3 {
		mask &^= landlockAccessFSTruncate
	}
	attr := landlockRulesetAttr{HandledAccessFS: mask}
	fd, _, errno := unix.Syscall(sysLandlockCreateRuleset, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

func landlockAddPathRule(rulesetFd int, path string, accessMask uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	attr := landlockPathBeneathAttr{AllowedAccess: accessMask, ParentFd: int32(fd)}
	_, _, errno := unix.Syscall6(sysLandlockAddRule, uintptr(rulesetFd), landlockRuleTypePathBeneath,
		uintptr(unsafe.Pointer(&attr)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func landlockRestrictSelf(rulesetFd int) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	_, _, errno := unix.Syscall(sysLandlockRestrictSelf, uintptr(rulesetFd), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
