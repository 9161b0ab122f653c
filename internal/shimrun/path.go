package shimrun

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// BuildCleanSearchPath splits original (SHIM_ORIGINAL_PATH if set, else
// PATH) on the OS list separator, drops empty entries and any entry
// starting with shimDir, validates each remaining entry as an absolute
// directory, and deduplicates preserving first occurrence. An empty result
// is an error.
func BuildCleanSearchPath(original, shimDir string) ([]string, error) {
	if original == "" {
		original = os.Getenv("PATH")
	}

	var out []string
	seen := make(map[string]bool)

	for _, entry := range strings.Split(original, string(os.PathListSeparator)) {
		if entry == "" {
			continue
		}
		if shimDir != "" && strings.HasPrefix(entry, shimDir) {
			continue
		}
		if !filepath.IsAbs(entry) {
			continue
		}
		info, err := os.Stat(entry)
		if err != nil || !info.IsDir() {
			continue
		}
		if seen[entry] {
			continue
		}
		seen[entry] = true
		out = append(out, entry)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no valid search paths")
	}
	return out, nil
}

// ResolveRealBinary finds the actual binary for commandName: if it
// contains a path separator it is treated as a literal path (no PATH
// search); otherwise each directory in searchPaths is scanned in order and
// the first executable hit wins.
func ResolveRealBinary(commandName string, searchPaths []string) (string, error) {
	if strings.ContainsRune(commandName, os.PathSeparator) {
		if isExecutable(commandName) {
			return commandName, nil
		}
		return "", fmt.Errorf("shimrun: %s is not executable", commandName)
	}

	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, commandName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("shimrun: %s not found in search path", commandName)
}

// isExecutable checks the 0o111 execute-bit mode on POSIX; on platforms
// without meaningful mode bits this degrades to a plain existence check.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
