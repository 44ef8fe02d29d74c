package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a SHA-256 hex digest of arbitrary bytes.
func Fingerprint(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

// FingerprintJSON marshals v with encoding/json and hashes the bytes.
// Use with already-normalized, order-independent shapes; hashing a raw
// map would not be stable across runs.
func FingerprintJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Fingerprint(b), nil
}
