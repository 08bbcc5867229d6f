// Package contenthash computes the duplicate-detection digest for
// uploaded documents.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum streams r through SHA-256 and returns the lowercase hex digest.
// Backups written by earlier versions use the same encoding, so hashes
// stay comparable across installs.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the digest of data.
func Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File returns the digest of the file at path without reading it fully
// into memory.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return Sum(f)
}
