// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and the SHA-256 hashing primitives of the Truth Chain.
//
// Everything here is a pure function: the same input must hash to the same
// digest on any machine, so an independent verifier can reproduce every hash
// byte-for-byte from published data alone.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON form of v: key-sorted, compact,
// no HTML escaping.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return canonical, nil
}

// Hash returns the SHA-256 hex digest of the canonical JSON form of v.
func Hash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// nodePrefix domain-separates interior Merkle nodes from leaf hashes: a
// parent digest can never be replayed as a leaf of another proof.
const nodePrefix = "cognigate:chain:node:v1"

// HashPair hashes two hex digests into their parent digest. The inputs are
// ordered lexicographically before concatenation, so proof verification does
// not depend on construction order.
func HashPair(a, b string) string {
	if b < a {
		a, b = b, a
	}
	left, err := hex.DecodeString(a)
	if err != nil {
		// Hex digests come from our own hash functions; anything else is a
		// caller bug, and hashing the raw strings keeps the function total.
		left = []byte(a)
	}
	right, err := hex.DecodeString(b)
	if err != nil {
		right = []byte(b)
	}
	h := sha256.New()
	h.Write([]byte(nodePrefix))
	h.Write([]byte{0})
	h.Write(left)
	h.Write(right)
	return hex.EncodeToString(h.Sum(nil))
}
