//go:build windows

package main

import "os"

// watchResize is a no-op on Windows: there is no SIGWINCH equivalent, and
// creack/pty's ConPTY backend doesn't expose an analogous resize signal.
func watchResize(*os.File) func() { return func() {} }
