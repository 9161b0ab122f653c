//go:build linux

package world

import (
	"fmt"
)

// BPF instruction constants, grounded on the classic cBPF seccomp
// bytecode shape (load syscall arch+nr, compare, return).
const (
	bpfLD  = 0x00
	bpfJMP = 0x05
	bpfRET = 0x06
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJEQ = 0x10
	bpfK   = 0x00
)

const (
	offsetNR   = 0
	offsetArch = 4
)

const auditArchX8664 = 0xc000003e

const (
	seccompRetAllow = 0x7fff0000
	seccompRetLog   = 0x7ffc0000
	seccompRetKill  = 0x00000000
)

const seccompModeFilter = 2

type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

type sockFprog struct {
	Len    uint16
	Filter *sockFilter
}

// syscallNumbersX8664 covers the syscalls the baseline filter logs. Only
// the ones actually named by the spec's log-only set are needed; a
// denylist broader than this would start contradicting "baseline".
var syscallNumbersX8664 = map[string]uint32{
	"mount":           165,
	"umount2":         166,
	"pivot_root":      155,
	"keyctl":          250,
	"perf_event_open": 298,
	"bpf":             321,
}

// buildSeccompInstructions assembles a tiny cBPF program: verify the
// calling architecture is x86_64, then for each name in logged, compare
// the syscall number and branch to SECCOMP_RET_LOG; fall through to
// SECCOMP_RET_ALLOW for everything else. Kept separate from
// buildSeccompLogProgram so the instruction sequence is testable without
// reaching through an unsafe pointer.
func buildSeccompInstructions(logged []string) []sockFilter {
	var insns []sockFilter

	insns = append(insns, sockFilter{Code: bpfLD | bpfW | bpfABS, K: offsetArch})
	insns = append(insns, sockFilter{Code: bpfJMP | bpfJEQ | bpfK, K: auditArchX8664, Jt: 1, Jf: 0})
	insns = append(insns, sockFilter{Code: bpfRET | bpfK, K: seccompRetKill})

	insns = append(insns, sockFilter{Code: bpfLD | bpfW | bpfABS, K: offsetNR})

	for _, name := range logged {
		nr, ok := syscallNumbersX8664[name]
		if !ok {
			continue
		}
		insns = append(insns, sockFilter{Code: bpfJMP | bpfJEQ | bpfK, K: nr, Jt: 0, Jf: 1})
		insns = append(insns, sockFilter{Code: bpfRET | bpfK, K: seccompRetLog})
	}

	insns = append(insns, sockFilter{Code: bpfRET | bpfK, K: seccompRetAllow})
	return insns
}

func buildSeccompLogProgram(logged []string) (*sockFprog, error) {
	insns := buildSeccompInstructions(logged)
	if len(insns) > 0xffff {
		return nil, fmt.Errorf("seccomp program too large: %d instructions", len(insns))
	}
	return &sockFprog{Len: uint16(len(insns)), Filter: &insns[0]}, nil
}
