//go:build windows

package agentapi

func hostShell() string     { return "cmd.exe" }
func hostShellFlag() string { return "/C" }
