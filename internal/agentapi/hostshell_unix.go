//go:build !windows

package agentapi

func hostShell() string     { return "/bin/sh" }
func hostShellFlag() string { return "-c" }
