//go:build linux

package transport

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// defaultListenFDStart is the first inherited file descriptor under the
// systemd socket-activation protocol when LISTEN_FD_START is unset;
// descriptors 0-2 are always stdin/stdout/stderr.
const defaultListenFDStart = 3

// ListenersFromEnvironment inspects LISTEN_PID/LISTEN_FDS/LISTEN_FDNAMES
// and returns any inherited sockets this process should serve on,
// classifying each by its address family (AF_UNIX or AF_INET{,6} stream
// sockets are accepted; anything else is skipped silently).
// Unsets all four LISTEN_* env vars afterward so a child this process
// spawns doesn't also try to claim them.
func ListenersFromEnvironment() ([]ActivationListener, error) {
	defer clearActivationEnv()

	nfds, pid, ok := parseActivationEnv()
	if !ok || nfds == 0 {
		return nil, nil
	}
	if pid != os.Getpid() {
		return nil, nil
	}

	names := strings.Split(os.Getenv("LISTEN_FDNAMES"), ":")
	fdStart := defaultListenFDStart
	if v := os.Getenv("LISTEN_FD_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fdStart = n
		}
	}

	var out []ActivationListener
	for i := 0; i < nfds; i++ {
		fd := fdStart + i
		unix.CloseOnExec(fd)

		sa, err := unix.Getsockname(fd)
		if err != nil {
			continue
		}

		name := fmt.Sprintf("fd-%d", fd)
		if i < len(names) && names[i] != "" {
			name = unescapeFDName(names[i])
		}

		switch sa.(type) {
		case *unix.SockaddrUnix, *unix.SockaddrInet4, *unix.SockaddrInet6:
			f := os.NewFile(uintptr(fd), name)
			l, err := net.FileListener(f)
			if err != nil {
				continue
			}
			out = append(out, ActivationListener{Name: name, Listener: l})
		default:
			continue
		}
	}
	return out, nil
}

func parseActivationEnv() (nfds, pid int, ok bool) {
	nfdsStr := os.Getenv("LISTEN_FDS")
	pidStr := os.Getenv("LISTEN_PID")
	if nfdsStr == "" || pidStr == "" {
		return 0, 0, false
	}
	n, err := strconv.Atoi(nfdsStr)
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, 0, false
	}
	return n, p, true
}

func clearActivationEnv() {
	os.Unsetenv("LISTEN_PID")
	os.Unsetenv("LISTEN_FDS")
	os.Unsetenv("LISTEN_FDNAMES")
	os.Unsetenv("LISTEN_FD_START")
}

// unescapeFDName reverses the backslash-escaping systemd applies to
// colons inside individual LISTEN_FDNAMES entries.
func unescapeFDName(s string) string {
	return strings.ReplaceAll(s, `\:`, ":")
}
