//go:build linux

package world

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// step6PivotRoot moves the process's root into the overlay's merged
// directory, mounts a fresh /proc, populates a minimal /dev, and lazily
// unmounts the old root so none of the host filesystem outside the
// overlay remains reachable by path.
func step6PivotRoot(cfg *linuxConfig, layout *overlayLayout, report *IsolationReport) bool {
	oldRoot := filepath.Join(layout.merged, ".old_root")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		report.record("pivot_root", false, fmt.Sprintf("mkdir old_root: %v", err))
		return false
	}

	if err := unix.PivotRoot(layout.merged, oldRoot); err != nil {
		report.record("pivot_root", false, fmt.Sprintf("pivot_root: %v", err))
		return false
	}

	if err := os.Chdir("/"); err != nil {
		report.record("pivot_root", false, fmt.Sprintf("chdir /: %v", err))
		return false
	}

	if err := os.MkdirAll("/proc", 0o555); err == nil {
		_ = unix.Mount("proc", "/proc", "proc", 0, "")
	}

	if err := populateMinimalDev(cfg); err != nil {
		report.record("pivot_root", false, fmt.Sprintf("populate /dev: %v", err))
	}

	oldRootAfterPivot := "/.old_root"
	if err := unix.Unmount(oldRootAfterPivot, unix.MNT_DETACH); err != nil {
		report.record("pivot_root", true, fmt.Sprintf("lazy-unmount old root failed (non-fatal): %v", err))
		return true
	}
	_ = os.Remove(oldRootAfterPivot)

	report.record("pivot_root", true, "")
	return true
}

// populateMinimalDev creates just enough of /dev (null, zero, urandom,
// tty) for ordinary interpreters and build tools to function inside the
// pivoted root, via mknod where permitted, falling back to bind-mounting
// the host device node when mknod is denied (common without
// CAP_MKNOD in the user namespace).
func populateMinimalDev(cfg *linuxConfig) error {
	if err := os.MkdirAll("/dev", 0o755); err != nil {
		return err
	}

	nodes := map[string]struct {
		major, minor uint32
		mode         uint32
	}{
		"null":    {1, 3, unix.S_IFCHR | 0o666},
		"zero":    {1, 5, unix.S_IFCHR | 0o666},
		"urandom": {1, 9, unix.S_IFCHR | 0o666},
		"tty":     {5, 0, unix.S_IFCHR | 0o666},
	}

	var firstErr error
	for name, n := range nodes {
		path := filepath.Join("/dev", name)
		dev := unix.Mkdev(n.major, n.minor)
		if err := unix.Mknod(path, n.mode, int(dev)); err != nil {
			if bindErr := bindDevFallback(path, name); bindErr != nil && firstErr == nil {
				firstErr = bindErr
			}
		}
	}
	return firstErr
}

func bindDevFallback(path, name string) error {
	hostPath := filepath.Join("/.old_root/dev", name)
	if _, err := os.Stat(hostPath); err != nil {
		return err
	}
	if _, err := os.Create(path); err != nil {
		return err
	}
	return unix.Mount(hostPath, path, "", unix.MS_BIND, "")
}
