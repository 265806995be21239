// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic, content-addressed hashing of decisions
// and receipts. Two representations of the same content always produce
// the same digest, which is what makes receipts comparable across
// implementations and across time.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// HashPrefix identifies the digest algorithm in stored hashes.
const HashPrefix = "sha256-"

// Canonicalize returns the RFC 8785 canonical JSON form of v: keys sorted
// lexicographically by UTF-8 bytes, no HTML escaping, deterministic number
// formatting.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Hash returns "sha256-" + hex SHA-256 of the canonical form of v.
func Hash(v interface{}) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns "sha256-" + hex SHA-256 of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// DecisionHash computes the content hash of a Decision. The Hash field is
// excluded from the canonical form; the timestamp is included, so every
// committed receipt is unique per run even when the analyzed content
// repeats. Changing any other field changes the hash.
func DecisionHash(d contracts.Decision) (string, error) {
	d.Hash = ""
	return Hash(d)
}
