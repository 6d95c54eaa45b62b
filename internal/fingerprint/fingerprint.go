// Package fingerprint derives stable cache keys from search parameters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Compute hashes the canonical JSON form of v to a 64-char hex digest.
// The value is marshaled, decoded into plain maps and re-marshaled before
// hashing: encoding/json emits map keys sorted, so two logically identical
// parameter sets produce the same digest regardless of field order or the
// concrete type they arrived in.
func Compute(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	canon, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
