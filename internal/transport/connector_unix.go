package transport

import (
	"context"
	"net"
	"net/http"
)

type unixConnector struct {
	t      Transport
	client *http.Client
}

func newUnixConnector(t Transport) *unixConnector {
	return &unixConnector{
		t: t,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", t.Path)
				},
			},
			Timeout: 0, // caller applies REQUEST_TIMEOUT via context
		},
	}
}

func (c *unixConnector) Mode() Mode        { return ModeUnixSocket }
func (c *unixConnector) Endpoint() string  { return c.t.Path }
func (c *unixConnector) PrepareRequest(req *http.Request) {
	if req.Host == "" {
		req.Host = "unix"
	}
}

func (c *unixConnector) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.client.Do(req)
}
