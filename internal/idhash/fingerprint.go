// Package idhash derives deterministic identifiers for stored records.
package idhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ComputeTokenFingerprint computes a deterministic fingerprint of a token-URI.
// Formula: SHA256(lower(contract)|token_id|token_uri)
// Returns the base58-encoded hash.
func ComputeTokenFingerprint(contract string, tokenID uint64, tokenURI string) string {
	data := fmt.Sprintf("%s|%d|%s",
		strings.ToLower(contract),
		tokenID,
		tokenURI,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// DecodeFingerprint returns the raw hash bytes of a fingerprint.
func DecodeFingerprint(fingerprint string) ([]byte, error) {
	raw, err := base58.Decode(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("decode fingerprint: got %d bytes, want %d", len(raw), sha256.Size)
	}
	return raw, nil
}
