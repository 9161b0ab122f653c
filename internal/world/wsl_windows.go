//go:build windows

package world

import (
	"context"
	"os/exec"

	"github.com/substrate-dev/substrate/internal/transport"
)

// NewBackend on Windows delegates to a warm WSL distro running
// world-agent, reached over the Agent API's NamedPipe transport (see
// internal/transport). Ensure_session here only has to guarantee the
// distro is up; the distro's own world-agent applies the real Linux
// isolation stack.
func NewBackend() Backend {
	t := transport.Transport{Mode: transport.ModeNamedPipe, PipePath: `\\.\pipe\substrate-agent`}
	return newDelegatingBackend(t, warmWSLDistro)
}

func warmWSLDistro(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "wsl.exe", "-d", "substrate", "--", "true")
	return cmd.Run()
}
