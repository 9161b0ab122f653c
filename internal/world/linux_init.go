//go:build linux

package world

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/substrate-dev/substrate/internal/policy"
)

// RunWorldInit is the entry point cmd/world-agent's main calls when
// re-exec'd as the namespaced child (argv[1] == worldInitSentinel). It
// applies the isolation stack to itself, reports readiness plus the
// resulting IsolationReport over fd 4 (the response pipe), then serves
// exec requests read line-by-line from fd 3 until that pipe closes.
func RunWorldInit(sessionID string) int {
	reqR := os.NewFile(3, "world-init-req")
	respW := os.NewFile(4, "world-init-resp")
	if reqR == nil || respW == nil {
		fmt.Fprintln(os.Stderr, "world-init: missing control file descriptors")
		return 1
	}

	report := &IsolationReport{}
	cfg := newDefaultLinuxConfig()

	readOnly, _ := strconv.ParseBool(os.Getenv("SUBSTRATE_WORLD_READ_ONLY"))
	projectDir := os.Getenv("SUBSTRATE_WORLD_PROJECT_DIR")
	isolateNet, _ := strconv.ParseBool(os.Getenv("SUBSTRATE_WORLD_ISOLATE_NET"))
	isolation := policy.Isolation(os.Getenv("SUBSTRATE_WORLD_ISOLATION"))
	readAllow := splitAllowlist(os.Getenv("SUBSTRATE_WORLD_READ_ALLOW"))
	writeAllow := splitAllowlist(os.Getenv("SUBSTRATE_WORLD_WRITE_ALLOW"))

	// CLONE_NEWUSER/CLONE_NEWNS already applied by the parent's
	// SysProcAttr.Cloneflags; uid/gid mapping still has to be written
	// from inside (the kernel requires the mapping writer to be the
	// namespace's creator or a process inside it with the right perms).
	step1UserMappingOnly(report)
	step2MountNamespace(report)

	layout := newOverlayLayout(cfg.overlayBase, sessionID)
	if readOnly {
		step3BuildOverlayRoot(cfg, layout, true, isolation, projectDir, report)
		step5ReadOnlyMount(layout, isolation, report)
	} else {
		step3BuildOverlayRoot(cfg, layout, false, isolation, projectDir, report)
		step4MountOverlay(layout, isolation, report)
	}

	step6PivotRoot(cfg, layout, report)
	step7Cgroup(cfg, sessionID, policy.Limits{}, report)
	step8NetworkNamespace(report, isolateNet)

	if err := step9Security(readAllow, writeAllow, report); err != nil {
		writeControl(respW, controlResponse{Type: controlTypeError, Err: err.Error()})
		return 1
	}

	writeControl(respW, controlResponse{Type: controlTypeReady, Ready: &readyPayload{Steps: report.Steps}})

	serveExecLoop(reqR, respW)
	return 0
}

func serveExecLoop(reqR, respW *os.File) {
	scanner := bufio.NewScanner(reqR)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var req controlRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			writeControl(respW, controlResponse{Type: controlTypeError, Err: err.Error()})
			continue
		}
		if req.Type != controlTypeExec || req.Exec == nil {
			writeControl(respW, controlResponse{Type: controlTypeError, Err: "unsupported control message"})
			continue
		}
		result := runOneCommand(*req.Exec)
		writeControl(respW, controlResponse{Type: controlTypeResult, Result: &result})
	}
}

func runOneCommand(p execPayload) resultPayload {
	cmd := exec.Command("/bin/sh", "-c", p.Cmd)
	if p.Cwd != "" {
		cmd.Dir = p.Cwd
	}
	if len(p.Env) > 0 {
		env := os.Environ()
		for k, v := range p.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exit := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exit = exitErr.ExitCode()
	} else if err != nil {
		exit = 127
	}

	return resultPayload{Exit: exit, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
}

// splitAllowlist reverses the ";"-joining EnsureSession uses to pack an
// allowlist into a single env var, dropping empty entries so an unset or
// empty allowlist decodes back to a nil slice rather than [""].
func splitAllowlist(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeControl(w *os.File, resp controlResponse) {
	line, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = w.Write(append(line, '\n'))
}
