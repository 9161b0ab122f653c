package shimrun

import (
	"strings"
	"testing"
)

func TestNextCallStackCollapsesConsecutiveDuplicates(t *testing.T) {
	c := &Context{CommandName: "npm", CallStack: []string{"A", "npm"}}
	got := c.NextCallStack()
	want := []string{"A", "npm"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextCallStackKeepsNonConsecutiveRepeats(t *testing.T) {
	c := &Context{CommandName: "A", CallStack: []string{"A", "B"}}
	got := c.NextCallStack()
	want := "A,B,A"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %s, want %s", strings.Join(got, ","), want)
	}
}

func TestNextCallStackTruncatesAt8(t *testing.T) {
	c := &Context{CommandName: "I", CallStack: []string{"A", "B", "C", "D", "E", "F", "G", "H"}}
	got := c.NextCallStack()
	if got[0] != "..." {
		t.Fatalf("expected leading ... marker, got %v", got)
	}
	if len(got) != 9 {
		t.Fatalf("expected 9 entries (marker + 8), got %d: %v", len(got), got)
	}
	if got[len(got)-1] != "I" {
		t.Fatalf("expected last entry to be the new command, got %v", got)
	}
}

func TestShimDepthMonotonicityViaExecEnv(t *testing.T) {
	c := &Context{CommandName: "A", SessionID: "sess-1", Depth: 0}
	env := c.ExecEnv("/usr/bin", "spn_1")
	if !hasEnv(env, "SHIM_DEPTH=1") {
		t.Fatalf("expected depth 1 in child env: %v", env)
	}
	if !hasEnv(env, "SHIM_SESSION_ID=sess-1") {
		t.Fatalf("expected session id carried through: %v", env)
	}
}

func hasEnv(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}
