package main

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// runPTYLocal runs cmdLine (or, when empty, shellBin with no arguments —
// an interactive shell) inside a real pseudo-terminal, with the calling
// terminal put in raw mode for the duration so keystrokes and control
// sequences pass through untouched. Unlike internal/pty's Session, which
// frames a remote agent's keystrokes over a websocket, this talks
// directly to the local controlling terminal.
func runPTYLocal(ctx context.Context, cmdLine, cwd, shellBin string) (int, error) {
	var cmd *exec.Cmd
	if cmdLine == "" {
		cmd = exec.CommandContext(ctx, shellBin)
	} else {
		bin, flag := hostShellParts(shellBin)
		cmd = exec.CommandContext(ctx, bin, flag, cmdLine)
	}
	cmd.Dir = cwd

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 0, err
	}
	defer ptmx.Close()

	if size, err := pty.GetsizeFull(os.Stdin); err == nil {
		_ = pty.Setsize(ptmx, size)
	}
	stopResize := watchResize(ptmx)
	defer stopResize()

	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err == nil {
			restore = func() { _ = term.Restore(fd, old) }
			defer restore()
		}
	}

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	_, copyErr := io.Copy(os.Stdout, ptmx)
	_ = copyErr

	err = cmd.Wait()
	return exitCodeOf(err), nil
}
