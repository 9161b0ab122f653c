package policy

import (
	"os"
	"path/filepath"
	"sync"
)

// maxSearchDepth bounds how far up the directory tree DiscoverProfile will
// walk before giving up, mirroring the original profile detector's search
// limit.
const maxSearchDepth = 10

var profileCandidates = []string{
	".substrate-profile",
}

var profileDirCandidates = []string{
	filepath.Join(".substrate-profile.d", "default.yaml"),
	filepath.Join(".substrate-profile.d", "default.yml"),
	filepath.Join(".substrate-profile.d", "policy.yaml"),
	filepath.Join(".substrate-profile.d", "policy.yml"),
}

// ProfileDetector caches profile lookups per starting directory. This is a
// legacy discovery mechanism consulted only when neither the workspace nor
// the global two-tier policy.yaml exists; it never overrides that layered
// model.
type ProfileDetector struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewProfileDetector returns an empty detector.
func NewProfileDetector() *ProfileDetector {
	return &ProfileDetector{cache: make(map[string]string)}
}

// Find walks up from startDir looking for a .substrate-profile file or a
// .substrate-profile.d directory, stopping at homeDir or the filesystem
// root, or after maxSearchDepth levels, whichever comes first.
func (d *ProfileDetector) Find(startDir, homeDir string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.cache[startDir]; ok {
		return cached, cached != ""
	}

	path, found := findProfile(startDir, homeDir)
	d.cache[startDir] = path
	return path, found
}

func findProfile(startDir, homeDir string) (string, bool) {
	dir := startDir
	for depth := 0; depth < maxSearchDepth; depth++ {
		for _, name := range profileCandidates {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
		for _, rel := range profileDirCandidates {
			candidate := filepath.Join(dir, rel)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}

		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// package-level convenience detector used by Load; callers needing caching
// across many lookups should construct their own ProfileDetector.
var defaultDetector = NewProfileDetector()

// DiscoverProfile finds a legacy profile file starting from dir, using the
// package-level cached detector.
func DiscoverProfile(dir, homeDir string) (string, bool) {
	return defaultDetector.Find(dir, homeDir)
}
