package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ProjectHash derives the stable project identity recorded in session logs
// from the primary workspace directory.
func ProjectHash(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:16]
}
