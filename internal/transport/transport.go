// Package transport implements the Agent API's pluggable connector
// surface: a Transport describes where a world-agent listens (a Unix
// socket, a TCP host:port, or a Windows named pipe) and a Connector
// knows how to actually reach it over that transport.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// ActivationListener is one socket handed to this process by a
// supervisor (systemd, or anything else using the sd_listen_fds
// protocol) before exec, named per LISTEN_FDNAMES when present.
type ActivationListener struct {
	Name     string
	Listener net.Listener
}

// Mode identifies which of the three Transport kinds a Connector speaks.
type Mode string

const (
	ModeUnixSocket Mode = "unix_socket"
	ModeTCP        Mode = "tcp"
	ModeNamedPipe  Mode = "named_pipe"
)

// Transport is the resolved, validated destination a Connector dials.
// Exactly one of the embedded fields is meaningful, selected by Mode.
type Transport struct {
	Mode Mode

	// UnixSocket
	Path string

	// TCP
	Host string
	Port int

	// NamedPipe (Windows only)
	PipePath string
}

// DefaultTCPPort is the Agent API's default TCP port when a URI omits
// one.
const DefaultTCPPort = 17788

// DefaultTCPHost is used when a bare tcp:// URI omits a host.
const DefaultTCPHost = "127.0.0.1"

// Endpoint returns the human-readable destination string, used in log
// lines and trace spans' transport.endpoint field.
func (t Transport) Endpoint() string {
	switch t.Mode {
	case ModeUnixSocket:
		return t.Path
	case ModeTCP:
		return fmt.Sprintf("%s:%d", t.Host, t.Port)
	case ModeNamedPipe:
		return t.PipePath
	default:
		return ""
	}
}

// BuildURI reconstructs the canonical request URI for a given request
// path under this transport (used to build a net/http request target).
func (t Transport) BuildURI(path string) string {
	switch t.Mode {
	case ModeUnixSocket:
		return "http://unix" + path
	case ModeTCP:
		return fmt.Sprintf("http://%s:%d%s", t.Host, t.Port, path)
	case ModeNamedPipe:
		return "http://named-pipe" + path
	default:
		return path
	}
}

// Connector knows how to prepare and execute an HTTP request over one
// Transport. Each Mode gets its own Connector implementation because the
// dial and per-request header setup differ (TCP adds a Host header if
// missing; NamedPipe forces Connection: close and a fresh dial per
// request).
type Connector interface {
	Mode() Mode
	Endpoint() string
	PrepareRequest(req *http.Request)
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
}

// NewConnector builds the right Connector for a resolved Transport.
func NewConnector(t Transport) (Connector, error) {
	switch t.Mode {
	case ModeUnixSocket:
		return newUnixConnector(t), nil
	case ModeTCP:
		return newTCPConnector(t), nil
	case ModeNamedPipe:
		return newNamedPipeConnector(t), nil
	default:
		return nil, fmt.Errorf("transport: unknown mode %q", t.Mode)
	}
}
