//go:build windows

package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/Microsoft/go-winio"
)

// do dials a fresh named pipe client handle and performs one HTTP/1
// request/response over it, matching the spec's "fresh handshake per
// request" contract for NamedPipe transports.
func (c *namedPipeConnector) do(req *http.Request) (*http.Response, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return winio.DialPipeContext(ctx, c.t.PipePath)
			},
			DisableKeepAlives: true,
		},
	}
	return client.Do(req)
}
