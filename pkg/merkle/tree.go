// Package merkle builds Merkle trees over contiguous ranges of Truth Chain
// record hashes and produces per-record inclusion proofs.
//
// Proof verification is standalone: it needs only the leaf hash, the proof
// path, the leaf index and the published root, never the ledger itself.
package merkle

import (
	"fmt"

	"github.com/Vorion-Labs/cognigate/pkg/canonicalize"
)

// EmptyRoot is the fixed root of a tree over zero leaves (SHA-256 of empty
// input).
const EmptyRoot = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Tree is a Merkle tree over an ordered sequence of leaf hashes.
// Levels[0] is the (padded) leaf level; the last level holds only the root.
type Tree struct {
	Leaves []string
	Levels [][]string
	Root   string
}

// BuildTree constructs the tree bottom-up. Odd levels are padded by
// duplicating the last node, which keeps construction deterministic.
func BuildTree(leaves []string) *Tree {
	if len(leaves) == 0 {
		return &Tree{Root: EmptyRoot}
	}

	t := &Tree{Leaves: append([]string(nil), leaves...)}
	level := append([]string(nil), leaves...)
	for {
		t.Levels = append(t.Levels, level)
		if len(level) == 1 {
			break
		}
		level = nextLevel(level)
	}
	t.Root = t.Levels[len(t.Levels)-1][0]
	return t
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = canonicalize.HashPair(hashes[i], hashes[i+1])
	}
	return next
}

// Proof returns the ordered sibling hashes proving inclusion of the leaf at
// index, bottom-up. At each level the sibling of the current node is recorded
// and the index halves.
func (t *Tree) Proof(index int) ([]string, error) {
	if index < 0 || index >= len(t.Leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(t.Leaves))
	}

	var proof []string
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index // odd level: padded with a duplicate of itself
		}
		proof = append(proof, level[sibling])
		index /= 2
	}
	return proof, nil
}

// VerifyProof replays the pairing up the proof path and reports whether the
// computed root equals the published one. Pure function; usable by a third
// party holding only the published proof.
func VerifyProof(leafHash, root string, proof []string, index int) bool {
	if index < 0 {
		return false
	}
	current := leafHash
	for _, sibling := range proof {
		// HashPair orders its inputs, so left/right placement at each parity
		// step cannot change the digest.
		current = canonicalize.HashPair(current, sibling)
		index /= 2
	}
	return current == root
}
