//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
)

// watchResize propagates the controlling terminal's SIGWINCH into the
// pty's window size for as long as the returned stop func isn't called.
func watchResize(ptmx *os.File) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go func() {
		for range sigCh {
			if size, err := pty.GetsizeFull(os.Stdin); err == nil {
				_ = pty.Setsize(ptmx, size)
			}
		}
	}()
	return func() { signal.Stop(sigCh) }
}
