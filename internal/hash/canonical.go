package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/ogulcanaydogan/attestview/internal/jsontree"
)

// CanonicalJSON renders a tree value in RFC 8785 canonical form: sorted
// keys, no insignificant whitespace, ECMAScript number formatting.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := jsontree.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, nil
}

// HashCanonicalJSON returns the sha256 digest of v's canonical form along
// with the canonical bytes.
func HashCanonicalJSON(v any) (string, []byte, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", nil, err
	}
	return DigestBytes(canonical), canonical, nil
}

// DigestBytes returns "sha256:<hex>" for raw.
func DigestBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}
