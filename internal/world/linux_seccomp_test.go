//go:build linux

package world

import "testing"

func TestBuildSeccompInstructionsEndsWithAllow(t *testing.T) {
	insns := buildSeccompInstructions(seccompLoggedSyscalls)
	if len(insns) == 0 {
		t.Fatal("expected a non-empty program")
	}
	last := insns[len(insns)-1]
	if last.Code != bpfRET|bpfK || last.K != seccompRetAllow {
		t.Fatalf("expected final instruction to be RET ALLOW, got %+v", last)
	}
}

func TestBuildSeccompInstructionsLogsKnownSyscalls(t *testing.T) {
	insns := buildSeccompInstructions([]string{"mount"})
	found := false
	for _, in := range insns {
		if in.Code == bpfRET|bpfK && in.K == seccompRetLog {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a RET LOG instruction for the mount syscall")
	}
}

func TestBuildSeccompInstructionsSkipsUnknownSyscalls(t *testing.T) {
	withUnknown := buildSeccompInstructions([]string{"totally_made_up_syscall"})
	baseline := buildSeccompInstructions(nil)
	if len(withUnknown) != len(baseline) {
		t.Fatalf("expected unrecognized syscall name to add no instructions: got %d vs baseline %d",
			len(withUnknown), len(baseline))
	}
}

func TestBuildSeccompLogProgramMatchesInstructionCount(t *testing.T) {
	prog, err := buildSeccompLogProgram(seccompLoggedSyscalls)
	if err != nil {
		t.Fatalf("buildSeccompLogProgram: %v", err)
	}
	want := len(buildSeccompInstructions(seccompLoggedSyscalls))
	if int(prog.Len) != want {
		t.Fatalf("got program length %d, want %d", prog.Len, want)
	}
}
