package transport

import "testing"

func TestTransportEndpoint(t *testing.T) {
	cases := []struct {
		t    Transport
		want string
	}{
		{Transport{Mode: ModeUnixSocket, Path: "/run/a.sock"}, "/run/a.sock"},
		{Transport{Mode: ModeTCP, Host: "127.0.0.1", Port: 17788}, "127.0.0.1:17788"},
		{Transport{Mode: ModeNamedPipe, PipePath: `\\.\pipe\substrate-agent`}, `\\.\pipe\substrate-agent`},
	}
	for _, c := range cases {
		if got := c.t.Endpoint(); got != c.want {
			t.Fatalf("Endpoint() = %q, want %q", got, c.want)
		}
	}
}

func TestTransportBuildURI(t *testing.T) {
	tcp := Transport{Mode: ModeTCP, Host: "127.0.0.1", Port: 17788}
	if got, want := tcp.BuildURI("/v1/capabilities"), "http://127.0.0.1:17788/v1/capabilities"; got != want {
		t.Fatalf("BuildURI() = %q, want %q", got, want)
	}

	unixT := Transport{Mode: ModeUnixSocket, Path: "/run/a.sock"}
	if got := unixT.BuildURI("/v1/capabilities"); got != "http://unix/v1/capabilities" {
		t.Fatalf("BuildURI() = %q", got)
	}
}

func TestNewConnectorDispatchesByMode(t *testing.T) {
	cases := []struct {
		t    Transport
		want Mode
	}{
		{Transport{Mode: ModeUnixSocket, Path: "/run/a.sock"}, ModeUnixSocket},
		{Transport{Mode: ModeTCP, Host: "127.0.0.1", Port: 17788}, ModeTCP},
		{Transport{Mode: ModeNamedPipe, PipePath: `\\.\pipe\substrate-agent`}, ModeNamedPipe},
	}
	for _, c := range cases {
		conn, err := NewConnector(c.t)
		if err != nil {
			t.Fatalf("NewConnector(%+v): %v", c.t, err)
		}
		if conn.Mode() != c.want {
			t.Fatalf("Mode() = %q, want %q", conn.Mode(), c.want)
		}
		if conn.Endpoint() != c.t.Endpoint() {
			t.Fatalf("Endpoint() = %q, want %q", conn.Endpoint(), c.t.Endpoint())
		}
	}
}

func TestNewConnectorUnknownModeIsError(t *testing.T) {
	if _, err := NewConnector(Transport{Mode: Mode("bogus")}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
