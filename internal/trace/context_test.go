package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustIntPtr(n int) *int { return &n }

func TestAppendAndLoadSpanRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")

	ctx, err := Init(path)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Close()

	span := &Span{
		EventType: EventCommandComplete,
		SessionID: NewSessionID(),
		SpanID:    NewSpanID(),
		Component: ComponentShim,
		Cwd:       "/workspace",
		Cmd:       "echo hello",
		Exit:      mustIntPtr(0),
	}
	span.SetCommandCompleteDefaults()

	if err := ctx.Append(span); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := LoadSpan(path, span.SpanID)
	if err != nil {
		t.Fatalf("LoadSpan: %v", err)
	}
	if loaded.Cmd != span.Cmd {
		t.Fatalf("unexpected cmd: %s", loaded.Cmd)
	}
	if loaded.WorldFsStrategyFinal != StrategyHost {
		t.Fatalf("expected default final strategy host, got %s", loaded.WorldFsStrategyFinal)
	}
}

func TestLoadSpanPrefersCommandComplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	ctx, err := Init(path)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Close()

	spanID := NewSpanID()
	start := &Span{EventType: EventCommandStart, SpanID: spanID, Cmd: "echo hi", SessionID: "s"}
	complete := &Span{EventType: EventCommandComplete, SpanID: spanID, Cmd: "echo hi", SessionID: "s", Exit: mustIntPtr(0)}
	complete.SetCommandCompleteDefaults()

	if err := ctx.Append(start); err != nil {
		t.Fatalf("Append start: %v", err)
	}
	if err := ctx.Append(complete); err != nil {
		t.Fatalf("Append complete: %v", err)
	}

	loaded, err := LoadSpan(path, spanID)
	if err != nil {
		t.Fatalf("LoadSpan: %v", err)
	}
	if loaded.EventType != EventCommandComplete {
		t.Fatalf("expected command_complete preferred, got %s", loaded.EventType)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")

	ctx, err := Init(path, WithMaxMB(1), WithKeep(2))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Close()

	// Pad the active file past the 1MB threshold directly, bypassing Append's
	// JSON marshaling so the test stays fast.
	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = '0'
	}
	if _, err := ctx.file.Write(big); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	ctx.writer.Flush()

	if err := ctx.Append(&Span{EventType: EventCommandStart, SpanID: "spn_x", SessionID: "s", Cmd: "true"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rotated := path + ".1"
	info, err := os.Stat(rotated)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", rotated, err)
	}
	if info.Size() < 2*1024*1024 {
		t.Fatalf("rotated file too small: %d", info.Size())
	}

	activeInfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected active trace file: %v", err)
	}
	if activeInfo.Size() >= 16*1024 {
		t.Fatalf("active file should be small after rotation, got %d", activeInfo.Size())
	}

	if _, err := os.Stat(path + ".3"); err == nil {
		t.Fatalf("keep=2 should not produce a .3 file")
	}
}

func TestHashEnvVarsStableAcrossVolatileChanges(t *testing.T) {
	base := []string{"HOME=/root", "LANG=en_US.UTF-8", "PWD=/a", "SHLVL=1", "SHIM_DEPTH=0"}
	changed := []string{"HOME=/root", "LANG=en_US.UTF-8", "PWD=/b", "SHLVL=2", "SHIM_DEPTH=5", "SUBSTRATE_FOO=x"}

	h1 := HashEnvVars(base)
	h2 := HashEnvVars(changed)
	if h1 != h2 {
		t.Fatalf("hash should be stable across volatile-only changes: %s != %s", h1, h2)
	}

	h1Again := HashEnvVars(base)
	if h1 != h1Again {
		t.Fatalf("hash should be deterministic across repeated calls")
	}

	withRealChange := append(append([]string{}, base...), "EXTRA=1")
	if HashEnvVars(withRealChange) == h1 {
		t.Fatalf("hash should change when a non-volatile var is added")
	}
}

func TestHashEnvVarsIgnoresKeyOrder(t *testing.T) {
	a := []string{"B=2", "A=1"}
	b := []string{"A=1", "B=2"}
	if HashEnvVars(a) != HashEnvVars(b) {
		t.Fatalf("hash should not depend on input order")
	}
}

func TestNewSpanIDHasPrefix(t *testing.T) {
	id := NewSpanID()
	if !strings.HasPrefix(id, "spn_") {
		t.Fatalf("expected spn_ prefix, got %s", id)
	}
}
