//go:build !windows

package transport

import (
	"fmt"
	"net/http"
)

// do is unreachable in practice on non-Windows builds: NewConnector only
// ever produces a namedPipeConnector when a URI explicitly names a
// named-pipe transport, which nothing on Linux/macOS emits on its own.
func (c *namedPipeConnector) do(req *http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("transport: named pipe transport is only available on Windows")
}
