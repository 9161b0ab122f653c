package world

import "testing"

func TestIsolationReportRestrictionsListsOnlyApplied(t *testing.T) {
	r := &IsolationReport{}
	r.record("user_namespace", true, "")
	r.record("network_namespace", false, "unshare failed")
	r.record("cgroup", true, "")

	got := r.Restrictions()
	want := []string{"user_namespace", "cgroup"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIsolationReportDegradedWhenAnyStepFails(t *testing.T) {
	r := &IsolationReport{}
	r.record("user_namespace", true, "")
	if r.Degraded() {
		t.Fatal("expected not degraded when every step succeeded")
	}
	r.record("landlock", false, "unsupported kernel")
	if !r.Degraded() {
		t.Fatal("expected degraded once a step fails")
	}
}
