package merkle

import (
	"bytes"

	"github.com/zeebo/blake3"
)

// Leaf = H(0x00 || data), Inner = H(0x01 || L || R). An odd level
// duplicates its last node.
func leafHash(b []byte) []byte {
	h := blake3.New()
	h.Write([]byte{0x00})
	h.Write(b)
	return h.Sum(nil)
}

func innerHash(l, r []byte) []byte {
	h := blake3.New()
	h.Write([]byte{0x01})
	h.Write(l)
	h.Write(r)
	return h.Sum(nil)
}

func emptyRoot() []byte {
	h := blake3.New()
	h.Write([]byte{0x00})
	return h.Sum(nil)
}

func Root(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return emptyRoot()
	}
	level := hashLeaves(leaves)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// Step is one sibling on the path from a leaf to the root.
type Step struct {
	Hash  []byte `json:"hash"`
	Right bool   `json:"right"` // sibling sits to the right of the running hash
}

// Proof returns the inclusion path for leaves[index].
func Proof(leaves [][]byte, index int) ([]Step, bool) {
	if index < 0 || index >= len(leaves) {
		return nil, false
	}
	var path []Step
	level := hashLeaves(leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if index%2 == 0 {
			path = append(path, Step{Hash: level[index+1], Right: true})
		} else {
			path = append(path, Step{Hash: level[index-1], Right: false})
		}
		level = nextLevel(level)
		index /= 2
	}
	return path, true
}

// Verify recomputes the root from leaf and path.
func Verify(root, leaf []byte, path []Step) bool {
	cur := leafHash(leaf)
	for _, s := range path {
		if s.Right {
			cur = innerHash(cur, s.Hash)
		} else {
			cur = innerHash(s.Hash, cur)
		}
	}
	return bytes.Equal(cur, root)
}

func hashLeaves(leaves [][]byte) [][]byte {
	level := make([][]byte, len(leaves))
	for i := range leaves {
		level[i] = leafHash(leaves[i])
	}
	return level
}

func nextLevel(level [][]byte) [][]byte {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}
	next := make([][]byte, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = innerHash(level[i], level[i+1])
	}
	return next
}
