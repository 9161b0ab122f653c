package transport

import (
	"context"
	"fmt"
	"net/http"
)

type tcpConnector struct {
	t      Transport
	client *http.Client
}

func newTCPConnector(t Transport) *tcpConnector {
	return &tcpConnector{t: t, client: &http.Client{}}
}

func (c *tcpConnector) Mode() Mode       { return ModeTCP }
func (c *tcpConnector) Endpoint() string { return c.t.Endpoint() }

// PrepareRequest adds a Host header when the caller didn't already set
// one — a plain TCP connector has no implicit virtual host the way a
// named pipe or unix socket connector does.
func (c *tcpConnector) PrepareRequest(req *http.Request) {
	if req.Host == "" {
		req.Host = fmt.Sprintf("%s:%d", c.t.Host, c.t.Port)
	}
}

func (c *tcpConnector) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.client.Do(req)
}
