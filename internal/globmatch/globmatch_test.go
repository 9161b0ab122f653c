package globmatch

import "testing"

func TestMatchWildcard(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"echo*", "echo hi", true},
		{"echo*", "echoing", true},
		{"echo*", "say echo", false},
		{"git *", "git status", true},
		{"git ?tatus", "git status", true},
		{"*.txt", "notes.txt", true},
		{"*.txt", "notes.md", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.s); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestMatchSubstringWhenNoWildcard(t *testing.T) {
	if !Match("rm -rf", "sudo rm -rf /tmp") {
		t.Fatal("expected substring match for wildcard-free pattern")
	}
	if Match("rm -rf", "echo hi") {
		t.Fatal("expected no match")
	}
}

func TestMatchAnyReturnsFirstMatch(t *testing.T) {
	pattern, ok := MatchAny([]string{"npm*", "git*"}, "git status")
	if !ok || pattern != "git*" {
		t.Fatalf("expected git* match, got %q ok=%v", pattern, ok)
	}
}
