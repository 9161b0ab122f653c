package transport

import "testing"

func TestFromURIUnixScheme(t *testing.T) {
	tr, err := FromURI("unix:///run/substrate/agent.sock")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Mode != ModeUnixSocket || tr.Path != "/run/substrate/agent.sock" {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURIUnixSchemeWithoutPathIsError(t *testing.T) {
	if _, err := FromURI("unix://"); err == nil {
		t.Fatal("expected error for unix:// with no path")
	}
}

func TestFromURITCPDefaultsHostAndPort(t *testing.T) {
	tr, err := FromURI("tcp://")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Host != DefaultTCPHost || tr.Port != DefaultTCPPort {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURITCPHostAndPort(t *testing.T) {
	tr, err := FromURI("tcp://example.internal:9000")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Host != "example.internal" || tr.Port != 9000 {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURITCPHostOnlyDefaultsPort(t *testing.T) {
	tr, err := FromURI("tcp://example.internal")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Host != "example.internal" || tr.Port != DefaultTCPPort {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURITCPIPv6Bracketed(t *testing.T) {
	tr, err := FromURI("tcp://[::1]:9000")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Host != "::1" || tr.Port != 9000 {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURINamedPipeVariants(t *testing.T) {
	cases := []string{".", "/foo", "./foo", `\\.\pipe\foo`}
	for _, c := range cases {
		tr, err := FromURI("named-pipe://" + c)
		if err != nil {
			t.Fatalf("FromURI(%q): %v", c, err)
		}
		if tr.Mode != ModeNamedPipe {
			t.Fatalf("expected named pipe mode for %q, got %+v", c, tr)
		}
		if tr.PipePath[:9] != `\\.\pipe\` {
			t.Fatalf("expected normalized pipe path for %q, got %q", c, tr.PipePath)
		}
	}
}

func TestFromURIBareUnixPath(t *testing.T) {
	tr, err := FromURI("/var/run/substrate.sock")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Mode != ModeUnixSocket {
		t.Fatalf("expected unix socket mode, got %+v", tr)
	}
}

func TestFromURIBareTCPToken(t *testing.T) {
	tr, err := FromURI("localhost:9000")
	if err != nil {
		t.Fatalf("FromURI: %v", err)
	}
	if tr.Mode != ModeTCP || tr.Host != "localhost" || tr.Port != 9000 {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromURIUnknownScheme(t *testing.T) {
	if _, err := FromURI("ftp://example.com"); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestFromURIBareSchemeWordRequiresPath(t *testing.T) {
	for _, token := range []string{"unix", "uds"} {
		if _, err := FromURI(token); err == nil {
			t.Fatalf("expected path-required error for bare token %q", token)
		}
	}
}
