//go:build linux

package world

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/substrate-dev/substrate/internal/trace"
)

// enumerationProbeID/probeFileName name a marker file FsDiff writes into
// the upper directory before walking it and skips during the walk. The
// at-most-once enumeration per span comes from fsDiffCache: repeated
// fs_diff calls for the same session and span return the cached result
// rather than re-scanning.
const enumerationProbeID = "enumeration_v1"
const probeFileName = ".substrate_enum_probe"

var maxDiffEntries = 10000

var fsDiffCacheMu sync.Mutex
var fsDiffCache = map[string]*trace.FsDiff{}

// FsDiff enumerates the overlay upper directory for the writes/mods/
// deletes that accumulated during one span's execution. Deletes show up
// in overlayfs as character-device whiteout entries; every other file is
// reported under writes. Mods is never filled, because the upper dir
// alone does not tell a modified file from a new one.
func (b *LinuxBackend) FsDiff(ctx context.Context, h Handle, spanID string) (*trace.FsDiff, error) {
	cacheKey := h.ID + ":" + spanID
	fsDiffCacheMu.Lock()
	if cached, ok := fsDiffCache[cacheKey]; ok {
		fsDiffCacheMu.Unlock()
		return cached, nil
	}
	fsDiffCacheMu.Unlock()

	sess, err := b.session(h)
	if err != nil {
		return nil, err
	}
	if sess.readOnly {
		diff := &trace.FsDiff{}
		fsDiffCacheMu.Lock()
		fsDiffCache[cacheKey] = diff
		fsDiffCacheMu.Unlock()
		return diff, nil
	}

	if err := os.WriteFile(filepath.Join(sess.upperDir, probeFileName), []byte(enumerationProbeID), 0o600); err != nil {
		return nil, fmt.Errorf("fs_diff enumeration probe: %w", err)
	}

	diff, err := enumerateUpperDir(sess.upperDir)
	if err != nil {
		return nil, err
	}

	fsDiffCacheMu.Lock()
	fsDiffCache[cacheKey] = diff
	fsDiffCacheMu.Unlock()

	return diff, nil
}

// enumerateUpperDir walks an overlay upper directory and classifies
// every entry into writes/deletes (overlayfs whiteouts surface as
// character devices), capping at maxDiffEntries and setting Truncated
// when the cap is hit. Pulled out of FsDiff so it's testable against a
// plain temp directory without a live namespaced session.
func enumerateUpperDir(upperDir string) (*trace.FsDiff, error) {
	diff := &trace.FsDiff{}
	count := 0
	walkErr := filepath.WalkDir(upperDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(upperDir, path)
		if relErr != nil || rel == "." || filepath.Base(rel) == probeFileName {
			return nil
		}
		if count >= maxDiffEntries {
			diff.Truncated = true
			return filepath.SkipAll
		}
		count++

		if d.Type()&os.ModeCharDevice != 0 {
			diff.Deletes = append(diff.Deletes, rel)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		diff.Writes = append(diff.Writes, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk overlay upper dir: %w", walkErr)
	}
	diff.TreeHash = hashDiffEntries(diff)
	return diff, nil
}

func hashDiffEntries(diff *trace.FsDiff) string {
	h := sha256.New()
	for _, w := range diff.Writes {
		h.Write([]byte("w:" + w + "\n"))
	}
	for _, m := range diff.Mods {
		h.Write([]byte("m:" + m + "\n"))
	}
	for _, d := range diff.Deletes {
		h.Write([]byte("d:" + d + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
