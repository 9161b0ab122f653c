package shimrun

import (
	"reflect"
	"testing"
)

func TestRedactArgvFlagAndValue(t *testing.T) {
	got := RedactArgv([]string{"true", "-p", "hunter2"}, false)
	want := []string{"true", "***", "***"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRedactArgvRawDisablesRedaction(t *testing.T) {
	argv := []string{"true", "-p", "hunter2"}
	got := RedactArgv(argv, true)
	if !reflect.DeepEqual(got, argv) {
		t.Fatalf("expected raw passthrough, got %v", got)
	}
}

func TestRedactArgvKeyValStyle(t *testing.T) {
	got := RedactArgv([]string{"env", "TOKEN=abc123", "PATH=/bin"}, false)
	want := []string{"env", "TOKEN=***", "PATH=/bin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRedactArgvHeaderWithSensitiveKey(t *testing.T) {
	got := RedactArgv([]string{"curl", "-H", "Authorization: Bearer abcdef"}, false)
	want := []string{"curl", "***", "Authorization: ***"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRedactArgvHeaderWithBenignKeyUntouched(t *testing.T) {
	got := RedactArgv([]string{"curl", "-H", "Content-Type: application/json"}, false)
	want := []string{"curl", "***", "Content-Type: application/json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRedactArgvHeaderValueLooksLikeToken(t *testing.T) {
	got := RedactArgv([]string{"curl", "--header", "X-Custom: my-secret-token-value"}, false)
	want := []string{"curl", "***", "X-Custom: ***"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
