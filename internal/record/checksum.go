package record

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum returns the prefixed SHA256 digest of data, the form
// stored in manifests and the run catalog.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether data matches a stored checksum.
func VerifyChecksum(data []byte, expected string) bool {
	return ComputeChecksum(data) == expected
}
