//go:build !linux

package world

import "fmt"

// RunWorldInit only has a real implementation on Linux, where a world
// session is a local namespaces+overlayfs stack applied to a re-exec'd
// child. On macOS/Windows the equivalent namespaced child runs inside the
// delegated Lima VM / WSL distro, not on the host — cmd/world-agent's
// main never reaches this path there because NewBackend returns a
// delegatingBackend instead of a LinuxBackend.
func RunWorldInit(sessionID string) int {
	fmt.Println("world-init: not supported on this platform")
	return 1
}
