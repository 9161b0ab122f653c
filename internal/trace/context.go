package trace

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	// DefaultMaxMB is the trace log rotation threshold when TRACE_LOG_MAX_MB
	// is unset.
	DefaultMaxMB = 50
	// DefaultKeep is the number of rotated files retained when
	// TRACE_LOG_KEEP is unset.
	DefaultKeep = 5
)

// volatileEnvPrefixes/Names are excluded from hash_env_vars because they
// vary run-to-run without reflecting a meaningful environment change.
var volatileEnvPrefixes = []string{"SHIM_", "SUBSTRATE_"}
var volatileEnvNames = map[string]bool{
	"PWD":    true,
	"OLDPWD": true,
	"SHLVL":  true,
}

// Context is the single mutex-guarded writer handle for one trace log file.
// One struct owns one *os.File, mirroring the teacher's convention of a
// single struct owning one long-lived OS resource.
type Context struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	maxMB   int
	keep    int
	fsync   bool
	rotLock *flock.Flock
}

// Option configures a Context at Init time.
type Option func(*Context)

// WithMaxMB overrides the rotation threshold.
func WithMaxMB(mb int) Option {
	return func(c *Context) { c.maxMB = mb }
}

// WithKeep overrides the number of rotated files retained.
func WithKeep(n int) Option {
	return func(c *Context) { c.keep = n }
}

// WithFsync forces sync_all after every append, mirroring SHIM_FSYNC=1.
func WithFsync(on bool) Option {
	return func(c *Context) { c.fsync = on }
}

// Init creates the parent directory (if needed), opens path for
// append+create, and pre-rotates if the file already exceeds the configured
// maximum.
func Init(path string, opts ...Option) (*Context, error) {
	c := &Context{
		path:  path,
		maxMB: DefaultMaxMB,
		keep:  DefaultKeep,
	}
	if v := os.Getenv("TRACE_LOG_MAX_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.maxMB = n
		}
	}
	if v := os.Getenv("TRACE_LOG_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.keep = n
		}
	}
	c.fsync = os.Getenv("SHIM_FSYNC") == "1"

	for _, opt := range opts {
		opt(c)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: creating trace dir %s: %w", dir, err)
	}
	c.rotLock = flock.New(path + ".rotlock")

	if err := c.open(); err != nil {
		return nil, err
	}
	if err := c.rotateIfNeeded(); err != nil {
		c.file.Close()
		return nil, err
	}
	return c, nil
}

func (c *Context) open() error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("trace: opening %s: %w", c.path, err)
	}
	c.file = f
	c.writer = bufio.NewWriter(f)
	return nil
}

// Append writes span as one JSON line, rotating first if the file is over
// the configured size. The write is flushed immediately; with SHIM_FSYNC=1
// it is also fsynced.
func (c *Context) Append(span *Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rotateIfNeeded(); err != nil {
		return err
	}

	buf, err := json.Marshal(span)
	if err != nil {
		return fmt.Errorf("trace: marshaling span: %w", err)
	}
	buf = append(buf, '\n')

	if _, err := c.writer.Write(buf); err != nil {
		return fmt.Errorf("trace: writing span: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("trace: flushing span: %w", err)
	}
	if c.fsync {
		if err := c.file.Sync(); err != nil {
			return fmt.Errorf("trace: fsyncing span: %w", err)
		}
	}
	return nil
}

// rotateIfNeeded rolls trace.jsonl -> trace.jsonl.1 -> .2 -> ... -> .{keep},
// deleting the oldest, when the active file is at or beyond the configured
// max size. Must be called with c.mu held. Rotation is triggered by the
// next write, never by a timer; it takes a cross-process advisory lock so
// two processes sharing the same trace path never interleave a rotation.
func (c *Context) rotateIfNeeded() error {
	info, err := c.file.Stat()
	if err != nil {
		return fmt.Errorf("trace: stat: %w", err)
	}
	maxBytes := int64(c.maxMB) * 1024 * 1024
	if info.Size() < maxBytes {
		return nil
	}

	locked, err := c.rotLock.TryLock()
	if err != nil {
		return fmt.Errorf("trace: acquiring rotation lock: %w", err)
	}
	if !locked {
		// Another process is rotating; re-open and re-check after it's done.
		c.rotLock.Lock()
		defer c.rotLock.Unlock()
	} else {
		defer c.rotLock.Unlock()
	}
	if st, err := os.Stat(c.path); err == nil && st.Size() < maxBytes {
		// Someone else rotated while we waited: switch to the new file.
		if err := c.writer.Flush(); err != nil {
			return fmt.Errorf("trace: flushing after concurrent rotation: %w", err)
		}
		if err := c.file.Close(); err != nil {
			return fmt.Errorf("trace: closing after concurrent rotation: %w", err)
		}
		return c.open()
	}

	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("trace: flushing before rotation: %w", err)
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("trace: closing before rotation: %w", err)
	}

	oldest := fmt.Sprintf("%s.%d", c.path, c.keep)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			log.Printf("[trace] failed removing oldest rotation %s: %v", oldest, err)
		}
	}
	for i := c.keep - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", c.path, i)
		dst := fmt.Sprintf("%s.%d", c.path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("trace: rotating %s -> %s: %w", src, dst, err)
			}
		}
	}
	if err := os.Rename(c.path, c.path+".1"); err != nil {
		return fmt.Errorf("trace: rotating active file: %w", err)
	}

	return c.open()
}

// Path returns the active trace file path this Context writes to, used
// by callers that need to read it back (e.g. the Agent API's
// GET /v1/trace/{span_id} handler).
func (c *Context) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Close flushes and closes the underlying file.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writer.Flush(); err != nil {
		return err
	}
	return c.file.Close()
}

// LoadSpan performs a linear scan of the active trace file and returns the
// first completed span matching spanID, preferring command_complete over
// command_start when both exist for the same span_id.
func LoadSpan(path, spanID string) (*Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: opening %s: %w", path, err)
	}
	defer f.Close()

	var best *Span
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var s Span
		if err := json.Unmarshal(line, &s); err != nil {
			continue
		}
		if s.SpanID != spanID {
			continue
		}
		if best == nil {
			cp := s
			best = &cp
			continue
		}
		if best.EventType != EventCommandComplete && s.EventType == EventCommandComplete {
			cp := s
			best = &cp
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: scanning %s: %w", path, err)
	}
	if best == nil {
		return nil, fmt.Errorf("trace: no span found for %s", spanID)
	}
	return best, nil
}

// NewSessionID generates a fresh SHIM_SESSION_ID-style identifier: a bare
// UUIDv7, unprefixed (unlike span_id).
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSpanID generates a fresh span_id: a UUIDv7 prefixed "spn_".
func NewSpanID() string {
	return "spn_" + uuid.Must(uuid.NewV7()).String()
}

// HashEnvVars sorts KEY=VAL pairs (excluding volatile names), hashes them
// with SHA-256 and hex-encodes the result. Stable across calls for a
// bit-identical environment, ignoring only the volatile set.
func HashEnvVars(environ []string) string {
	var kept []string
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if volatileEnvNames[key] {
			continue
		}
		skip := false
		for _, p := range volatileEnvPrefixes {
			if strings.HasPrefix(key, p) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		kept = append(kept, kv)
	}
	sort.Strings(kept)

	h := sha256.New()
	for _, kv := range kept {
		h.Write([]byte(kv))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
