package substrateerr

import (
	"errors"
	"testing"
)

func TestExitCodeForKnownKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(KindUser, "bad flag"), 2},
		{New(KindPolicyDeny, "denied"), 126},
		{New(KindTransport, "connection refused"), 1},
		{New(KindTimeout, "Request timeout"), 1},
		{nil, 0},
	}
	for _, c := range cases {
		if got := ExitCodeFor(c.err); got != c.want {
			t.Fatalf("ExitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap(KindWorldUnavailable, "ensure_session failed", inner)

	if KindOf(wrapped) != KindWorldUnavailable {
		t.Fatalf("expected KindWorldUnavailable, got %v", KindOf(wrapped))
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestKindOfNonTaxonomyErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("expected a plain error to classify as KindInternal")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	e := Wrap(KindInternal, "load failed", errors.New("disk full"))
	if got, want := e.Error(), "load failed: disk full"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestTimeoutHelperMatchesSpecWording(t *testing.T) {
	e := Timeout()
	if e.Kind != KindTimeout || e.Msg != "Request timeout" {
		t.Fatalf("got %+v", e)
	}
}
