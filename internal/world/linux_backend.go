//go:build linux

package world

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// LinuxBackend implements Backend natively: ensure_session spawns a
// namespaced child process (the "world-init" child) that applies the
// isolation stack from spec §4.3.1 to itself before serving exec
// requests over a private control pipe.
type LinuxBackend struct {
	cfg   *linuxConfig
	cache sessionCache

	mu       sync.Mutex
	sessions map[string]*linuxSession
}

type linuxSession struct {
	handle    Handle
	cmd       *exec.Cmd
	reqW      *os.File
	respR     *os.File
	respBuf   *bufio.Scanner
	upperDir  string
	readOnly  bool
	mu        sync.Mutex // serializes exec requests against one session
}

// NewLinuxBackend constructs a backend using the default FHS-style
// config. EnsureSession re-execs the running binary (os.Executable) as
// the world-init child.
func NewLinuxBackend() *LinuxBackend {
	return &LinuxBackend{
		cfg:      newDefaultLinuxConfig(),
		sessions: make(map[string]*linuxSession),
	}
}

func (b *LinuxBackend) Ready() bool {
	return true
}

func (b *LinuxBackend) EnsureSession(ctx context.Context, spec Spec) (Handle, *IsolationReport, error) {
	if h, ok := b.cache.get(spec.ReuseSession); ok {
		b.mu.Lock()
		_, exists := b.sessions[h.ID]
		b.mu.Unlock()
		if exists {
			return h, &IsolationReport{}, nil
		}
	}

	h := newHandle()
	selfExe, err := os.Executable()
	if err != nil {
		return Handle{}, nil, fmt.Errorf("resolve world-agent binary: %w", err)
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return Handle{}, nil, fmt.Errorf("create request pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		return Handle{}, nil, fmt.Errorf("create response pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, selfExe, worldInitSentinel, h.ID)
	cmd.ExtraFiles = []*os.File{reqR, respW}
	cmd.Stdin = nil
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SUBSTRATE_WORLD_READ_ONLY=%v", modeIsReadOnly(spec.FsMode)),
		fmt.Sprintf("SUBSTRATE_WORLD_PROJECT_DIR=%s", spec.ProjectDir),
		fmt.Sprintf("SUBSTRATE_WORLD_ISOLATE_NET=%v", spec.IsolateNetwork),
		fmt.Sprintf("SUBSTRATE_WORLD_ISOLATION=%s", spec.Isolation),
		fmt.Sprintf("SUBSTRATE_WORLD_READ_ALLOW=%s", strings.Join(spec.ReadAllowlist, ";")),
		fmt.Sprintf("SUBSTRATE_WORLD_WRITE_ALLOW=%s", strings.Join(spec.WriteAllowlist, ";")),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS,
	}

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		respR.Close()
		respW.Close()
		return Handle{}, nil, fmt.Errorf("spawn world-init child: %w", err)
	}
	reqR.Close()
	respW.Close()

	scanner := bufio.NewScanner(respR)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		return Handle{}, nil, fmt.Errorf("world-init child closed before reporting readiness")
	}
	var resp controlResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return Handle{}, nil, fmt.Errorf("decode readiness message: %w", err)
	}
	if resp.Type == controlTypeError {
		return Handle{}, nil, fmt.Errorf("world-init child failed: %s", resp.Err)
	}

	report := &IsolationReport{}
	if resp.Ready != nil {
		report.Steps = resp.Ready.Steps
	}

	sess := &linuxSession{
		handle:   h,
		cmd:      cmd,
		reqW:     reqW,
		respR:    respR,
		respBuf:  scanner,
		upperDir: fmt.Sprintf("%s/%s/upper", b.cfg.overlayBase, h.ID),
		readOnly: modeIsReadOnly(spec.FsMode),
	}

	b.mu.Lock()
	b.sessions[h.ID] = sess
	b.mu.Unlock()
	b.cache.put(h)

	return h, report, nil
}

func (b *LinuxBackend) session(h Handle) (*linuxSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[h.ID]
	if !ok {
		return nil, fmt.Errorf("unknown world session %q", h.ID)
	}
	return s, nil
}

func (b *LinuxBackend) Exec(ctx context.Context, h Handle, req ExecRequest) (ExecResult, error) {
	sess, err := b.session(h)
	if err != nil {
		return ExecResult{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	creq := controlRequest{
		Type: controlTypeExec,
		Exec: &execPayload{Cmd: req.Cmd, Cwd: req.Cwd, Env: req.Env, AgentID: req.AgentID},
	}
	line, err := json.Marshal(creq)
	if err != nil {
		return ExecResult{}, err
	}
	if _, err := sess.reqW.Write(append(line, '\n')); err != nil {
		return ExecResult{}, fmt.Errorf("write exec request to world session: %w", err)
	}

	if !sess.respBuf.Scan() {
		return ExecResult{}, fmt.Errorf("world session closed without responding")
	}
	var resp controlResponse
	if err := json.Unmarshal(sess.respBuf.Bytes(), &resp); err != nil {
		return ExecResult{}, fmt.Errorf("decode exec response: %w", err)
	}
	if resp.Type == controlTypeError {
		return ExecResult{}, fmt.Errorf("world exec failed: %s", resp.Err)
	}
	if resp.Result == nil {
		return ExecResult{}, fmt.Errorf("world exec response missing result")
	}

	return ExecResult{
		Exit:   resp.Result.Exit,
		Stdout: resp.Result.Stdout,
		Stderr: resp.Result.Stderr,
	}, nil
}

// ApplyPolicy updates the resource limits enforced on a live session.
// Landlock's filesystem ruleset is fixed at ensure_session time —
// landlock_restrict_self cannot be relaxed or re-scoped after the
// world-init child calls it — so a policy change that widens the
// read/write allowlists only takes effect on the next ensure_session.
func (b *LinuxBackend) ApplyPolicy(ctx context.Context, h Handle, spec Spec) error {
	if _, err := b.session(h); err != nil {
		return err
	}
	leaf := fmt.Sprintf("%s/substrate-%s", b.cfg.cgroupRoot, h.ID)
	if spec.Limits.MaxMemoryMB != nil {
		bytes := *spec.Limits.MaxMemoryMB * 1024 * 1024
		if err := os.WriteFile(leaf+"/memory.max", []byte(fmt.Sprintf("%d", bytes)), 0o644); err != nil {
			log.Printf("[world] session %s: degraded memory.max write: %v", h.ID, err)
		}
	}
	if spec.Limits.MaxCPUPercent != nil {
		quota := *spec.Limits.MaxCPUPercent * 1000
		if err := os.WriteFile(leaf+"/cpu.max", []byte(fmt.Sprintf("%d 100000", quota)), 0o644); err != nil {
			log.Printf("[world] session %s: degraded cpu.max write: %v", h.ID, err)
		}
	}
	return nil
}
