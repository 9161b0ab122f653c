package transport

import (
	"context"
	"net/http"
)

type namedPipeConnector struct {
	t Transport
}

func newNamedPipeConnector(t Transport) *namedPipeConnector {
	return &namedPipeConnector{t: t}
}

func (c *namedPipeConnector) Mode() Mode       { return ModeNamedPipe }
func (c *namedPipeConnector) Endpoint() string { return c.t.PipePath }

// PrepareRequest sets Host: localhost and forces Connection: close — a
// named pipe client opens a fresh pipe handle and does a clean HTTP/1
// handshake per request rather than keeping a connection alive across
// pipe reconnects.
func (c *namedPipeConnector) PrepareRequest(req *http.Request) {
	req.Host = "localhost"
	req.Close = true
}

func (c *namedPipeConnector) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.do(req)
}
