//go:build darwin

package world

import (
	"context"
	"os/exec"

	"github.com/substrate-dev/substrate/internal/transport"
)

// NewBackend on macOS delegates to a Lima VM running world-agent as its
// init. Lima itself provides the Linux kernel the native isolation stack
// needs; this process only starts/reuses the VM and forwards requests.
func NewBackend() Backend {
	t := transport.Transport{Mode: transport.ModeTCP, Host: transport.DefaultTCPHost, Port: transport.DefaultTCPPort}
	return newDelegatingBackend(t, warmLimaVM)
}

// warmLimaVM idempotently starts the substrate Lima instance. `limactl
// start` is already idempotent against an already-running instance, so
// no separate "is it running" check is needed before calling it.
func warmLimaVM(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "limactl", "start", "--tty=false", "substrate")
	return cmd.Run()
}
