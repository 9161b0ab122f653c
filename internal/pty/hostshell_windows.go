//go:build windows

package pty

import (
	"fmt"
	"os/exec"
)

func hostShell() string     { return "cmd.exe" }
func hostShellFlag() string { return "/C" }

// sendSignal is unsupported on Windows: there is no POSIX signal/process
// group model for a ConPTY-backed child. Substrate's PTY surface on
// Windows is reached only via the WSL delegation path (internal/world's
// wsl_windows.go), where the real pty lives inside the Linux distro and
// signals are delivered there instead.
func sendSignal(cmd *exec.Cmd, name string) error {
	return fmt.Errorf("pty: signal delivery is not supported on Windows")
}
