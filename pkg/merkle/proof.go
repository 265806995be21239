package merkle

import "fmt"

// InclusionProof lets a verifier confirm that a single receipt hash is
// part of a batch without re-reading the whole ledger.
type InclusionProof struct {
	LeafHash   string      `json:"leaf_hash"`
	MerkleRoot string      `json:"merkle_root"`
	ProofPath  []ProofStep `json:"proof_path"`
}

// ProofStep names the sibling at one reduction level. Side is the side
// the sibling sits on: "L" or "R".
type ProofStep struct {
	Side        string `json:"side"`
	SiblingHash string `json:"sibling_hash"`
}

// Prove builds the inclusion proof for hashes[index] using the same
// reduction shape as Root (odd tails duplicate themselves).
func Prove(hashes []string, index int) (InclusionProof, error) {
	if index < 0 || index >= len(hashes) {
		return InclusionProof{}, fmt.Errorf("merkle: index %d out of range (%d hashes)", index, len(hashes))
	}

	proof := InclusionProof{LeafHash: hashes[index]}
	level := append([]string(nil), hashes...)
	pos := index

	for len(level) > 1 {
		var sibling string
		var side string
		if pos%2 == 0 {
			side = "R"
			if pos+1 < len(level) {
				sibling = level[pos+1]
			} else {
				sibling = level[pos] // odd tail pairs with itself
			}
		} else {
			side = "L"
			sibling = level[pos-1]
		}
		proof.ProofPath = append(proof.ProofPath, ProofStep{Side: side, SiblingHash: sibling})

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				next = append(next, combine(level[i], level[i]))
			}
		}
		level = next
		pos /= 2
	}

	proof.MerkleRoot = level[0]
	return proof, nil
}

// VerifyInclusion replays the proof path and reports whether it reproduces
// the expected root. A single-element batch has an empty path and verifies
// iff the leaf equals the root.
func VerifyInclusion(proof InclusionProof, expectedRoot string) bool {
	current := proof.LeafHash
	for _, step := range proof.ProofPath {
		if step.Side == "L" {
			current = combine(step.SiblingHash, current)
		} else {
			current = combine(current, step.SiblingHash)
		}
	}
	return current == expectedRoot && proof.MerkleRoot == expectedRoot
}
