package shimrun

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
)

var (
	fingerprintOnce  sync.Once
	fingerprintValue string
	fingerprintErr   error
)

// Fingerprint returns "sha256:<hex>" of the current executable's bytes,
// computed once per process and cached.
func Fingerprint() (string, error) {
	fingerprintOnce.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			fingerprintErr = fmt.Errorf("shimrun: resolving current executable: %w", err)
			return
		}
		data, err := os.ReadFile(exe)
		if err != nil {
			fingerprintErr = fmt.Errorf("shimrun: reading current executable: %w", err)
			return
		}
		sum := sha256.Sum256(data)
		fingerprintValue = "sha256:" + hex.EncodeToString(sum[:])
	})
	return fingerprintValue, fingerprintErr
}
