//go:build linux

package world

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/substrate-dev/substrate/internal/policy"
	"golang.org/x/sys/unix"
)

// overlayLayout is the set of directories backing one world's overlay
// filesystem: lower/upper/work/merged plus the bind-mounted project and
// read-only system directories the workspace-scoped lowerdir layers on
// top of.
type overlayLayout struct {
	root   string // <overlayBase>/<session-id>
	lower  string // workspace-isolation lowerdir; unused under full isolation
	upper  string
	work   string
	merged string
}

func newOverlayLayout(base, sessionID string) *overlayLayout {
	root := filepath.Join(base, sessionID)
	return &overlayLayout{
		root:   root,
		lower:  filepath.Join(root, "lower"),
		upper:  filepath.Join(root, "upper"),
		work:   filepath.Join(root, "work"),
		merged: filepath.Join(root, "merged"),
	}
}

// step3BuildOverlayRoot creates the directory scaffolding. Under
// workspace/project isolation it also bind-mounts the project directory
// read-write and the essential system directories read-only (two-step
// bind then remount-ro, since Linux bind mounts cannot apply MS_RDONLY
// atomically) into layout.lower, the scoped tree that becomes the
// overlay's lowerdir. Under full isolation the host root itself is used
// as the lowerdir later, so there is nothing to scaffold here beyond the
// directories.
func step3BuildOverlayRoot(cfg *linuxConfig, layout *overlayLayout, readOnly bool, isolation policy.Isolation, projectDir string, report *IsolationReport) bool {
	dirs := []string{layout.root, layout.merged}
	if !readOnly {
		dirs = append(dirs, layout.upper, layout.work)
	}
	if isolation != policy.IsolationFull {
		dirs = append(dirs, layout.lower)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			report.record("overlay_scaffold", false, fmt.Sprintf("mkdir %s: %v", d, err))
			return false
		}
	}

	if isolation == policy.IsolationFull {
		report.record("overlay_scaffold", true, "full isolation: lowerdir is host root")
		return true
	}

	if projectDir != "" {
		projMount := filepath.Join(layout.lower, "workspace")
		if err := os.MkdirAll(projMount, 0o755); err != nil {
			report.record("overlay_scaffold", false, fmt.Sprintf("mkdir %s: %v", projMount, err))
			return false
		}
		if err := unix.Mount(projectDir, projMount, "", unix.MS_BIND, ""); err != nil {
			report.record("overlay_scaffold", false, fmt.Sprintf("bind project: %v", err))
			return false
		}
	}

	for _, sysPath := range cfg.essentialSystemPathsRO {
		if _, err := os.Stat(sysPath); err != nil {
			continue
		}
		target := filepath.Join(layout.lower, sysPath)
		if err := os.MkdirAll(target, 0o755); err != nil {
			continue
		}
		if err := bindReadOnly(sysPath, target); err != nil {
			report.record("overlay_scaffold_"+sysPath, false, err.Error())
		}
	}

	report.record("overlay_scaffold", true, "")
	return true
}

// bindReadOnly performs the classic two-step bind-then-remount-ro dance:
// a single mount() call cannot set MS_BIND and MS_RDONLY at once.
func bindReadOnly(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s: %w", src, err)
	}
	if err := unix.Mount("", dst, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("remount ro %s: %w", dst, err)
	}
	return nil
}

// step4MountOverlay mounts overlayfs via the kernel driver, falling back
// to fuse-overlayfs when the kernel mount is unavailable (common in
// nested/rootless setups without CAP_SYS_ADMIN for overlay). Under full
// isolation the lowerdir is the host root itself; under workspace/project
// isolation it is layout.lower, scoped to the project tree plus the
// essential system paths by step3BuildOverlayRoot. Returns the strategy
// that actually succeeded and a fallback reason when the primary path
// was not used.
func step4MountOverlay(layout *overlayLayout, isolation policy.Isolation, report *IsolationReport) (primary, final, reason string) {
	primary = "overlay"

	lowerdir := layout.lower
	if isolation == policy.IsolationFull {
		lowerdir = "/"
	}
	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lowerdir, layout.upper, layout.work)
	if err := unix.Mount("overlay", layout.merged, "overlay", 0, opts); err == nil {
		report.record("overlay_mount", true, "")
		if isolation == policy.IsolationFull {
			maskTmp(layout.merged, report)
		}
		return primary, "overlay", "none"
	} else if !os.IsPermission(err) && err != unix.EINVAL && err != unix.ENODEV {
		report.record("overlay_mount", false, fmt.Sprintf("kernel overlay mount: %v", err))
	}

	cmd := exec.Command("fuse-overlayfs", "-o", opts, layout.merged)
	if err := cmd.Run(); err == nil {
		report.record("overlay_mount", true, "fell back to fuse-overlayfs")
		if isolation == policy.IsolationFull {
			maskTmp(layout.merged, report)
		}
		return primary, "fuse", "primary_mount_failed"
	}

	report.record("overlay_mount", false, "both kernel overlay and fuse-overlayfs unavailable")
	return primary, "host", "fallback_mount_failed"
}

// step5ReadOnlyMount mounts only the lowerdir tree read-only, skipping
// upper/work entirely, for world_fs.mode=read_only. The source tree is
// layout.lower under workspace/project isolation or the host root itself
// under full isolation.
func step5ReadOnlyMount(layout *overlayLayout, isolation policy.Isolation, report *IsolationReport) (final, reason string) {
	src := layout.lower
	if isolation == policy.IsolationFull {
		src = "/"
	}
	if err := unix.Mount(src, layout.merged, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		report.record("readonly_mount", false, err.Error())
		return "host", "primary_mount_failed"
	}
	if err := unix.Mount("", layout.merged, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		report.record("readonly_mount", false, err.Error())
		return "host", "primary_mount_failed"
	}
	if isolation == policy.IsolationFull {
		maskTmp(layout.merged, report)
	}
	report.record("readonly_mount", true, "")
	return "overlay", "none"
}

// maskTmp mounts a fresh, empty tmpfs over /tmp inside the merged root so
// full isolation's whole-root lowerdir never exposes the host's existing
// /tmp contents to the world, per the full-cage contract.
func maskTmp(mergedRoot string, report *IsolationReport) {
	target := filepath.Join(mergedRoot, "tmp")
	if err := os.MkdirAll(target, 0o1777); err != nil {
		report.record("mask_tmp", false, err.Error())
		return
	}
	if err := unix.Mount("tmpfs", target, "tmpfs", 0, ""); err != nil {
		report.record("mask_tmp", false, err.Error())
		return
	}
	report.record("mask_tmp", true, "")
}

func modeIsReadOnly(m policy.FsMode) bool {
	return m == policy.FsModeReadOnly
}
