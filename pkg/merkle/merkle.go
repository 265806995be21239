// Package merkle reduces an ordered list of receipt hashes to a single
// root, so a whole batch of committed receipts can be verified against one
// value. The reduction concatenates the two hash strings of each pair and
// re-hashes with SHA-256, duplicating the final element whenever a level
// has odd length.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// Root computes the Merkle root of the given receipt hashes.
//
// An empty input yields the empty string; a single element is returned
// unchanged. The reduction is a pure function of its input: the ledger
// never stores the root as authoritative state.
func Root(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	next := make([]string, 0, (len(hashes)+1)/2)
	for i := 0; i < len(hashes); i += 2 {
		if i+1 < len(hashes) {
			next = append(next, combine(hashes[i], hashes[i+1]))
		} else {
			next = append(next, combine(hashes[i], hashes[i]))
		}
	}
	return Root(next)
}

func combine(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
