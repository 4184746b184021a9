package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash is the sha256 of file content, used to skip unchanged files.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func needsReprocessing(oldHash, newHash string, force bool) bool {
	if force || oldHash == "" {
		return true
	}
	return oldHash != newHash
}
