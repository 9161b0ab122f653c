package transport

import "testing"

func clearTransportEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SUBSTRATE_AGENT_TRANSPORT",
		"AGENT_TRANSPORT",
		"AGENT_SOCKET",
		"AGENT_TCP_HOST",
		"AGENT_TCP_PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvNoVarsIsError(t *testing.T) {
	clearTransportEnv(t)
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error when no transport env vars are set")
	}
}

func TestFromEnvSubstratePrefixWinsOverEverythingElse(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("SUBSTRATE_AGENT_TRANSPORT", "unix:///run/a.sock")
	t.Setenv("AGENT_TRANSPORT", "unix:///run/b.sock")
	t.Setenv("AGENT_SOCKET", "/run/c.sock")

	tr, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if tr.Path != "/run/a.sock" {
		t.Fatalf("expected SUBSTRATE_AGENT_TRANSPORT to win, got %+v", tr)
	}
}

func TestFromEnvAgentTransportWinsOverBareSocket(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("AGENT_TRANSPORT", "unix:///run/b.sock")
	t.Setenv("AGENT_SOCKET", "/run/c.sock")

	tr, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if tr.Path != "/run/b.sock" {
		t.Fatalf("expected AGENT_TRANSPORT to win over AGENT_SOCKET, got %+v", tr)
	}
}

func TestFromEnvBareAgentSocketFallback(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("AGENT_SOCKET", "/run/c.sock")

	tr, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if tr.Mode != ModeUnixSocket || tr.Path != "/run/c.sock" {
		t.Fatalf("got %+v", tr)
	}
}

func TestFromEnvLegacyTCPOverridesApplyToBareTCPToken(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("AGENT_TRANSPORT", "tcp")
	t.Setenv("AGENT_TCP_HOST", "10.0.0.5")
	t.Setenv("AGENT_TCP_PORT", "9999")

	tr, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if tr.Host != "10.0.0.5" || tr.Port != 9999 {
		t.Fatalf("expected legacy overrides to apply, got %+v", tr)
	}
}

func TestFromEnvLegacyTCPOverridesDoNotClobberExplicitHostPort(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("AGENT_TRANSPORT", "tcp://example.internal:1234")
	t.Setenv("AGENT_TCP_HOST", "10.0.0.5")
	t.Setenv("AGENT_TCP_PORT", "9999")

	tr, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if tr.Host != "example.internal" || tr.Port != 1234 {
		t.Fatalf("expected explicit host/port to win over legacy overrides, got %+v", tr)
	}
}

func TestFromEnvAgentTransportPropagatesURIError(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("AGENT_TRANSPORT", "unix://")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error to propagate from FromURI")
	}
}
