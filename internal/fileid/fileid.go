// Package fileid derives stable identifiers for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "sha256:"

// Digest returns a content digest. Identical bytes always yield the same digest,
// which lets re-ingestion of an unchanged file be skipped.
func Digest(content []byte) string {
	hash := sha256.Sum256(content)
	return prefix + hex.EncodeToString(hash[:])
}

// SourceName returns the name a file is indexed under: its base filename.
// Removal and replacement are keyed by this name.
func SourceName(path string) string {
	return filepath.Base(filepath.Clean(path))
}
