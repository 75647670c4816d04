package smt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type nodeType uint8

const (
	nodeEmpty nodeType = iota
	nodeMiddle
	nodeLeaf
)

// leafMarker is appended to leaf preimages so a leaf can never collide with a
// middle node built from the same 64 bytes.
var leafMarker = common.BigToHash(common.Big1)

// node is the arena record persisted under its own hash. Middle nodes use
// Left/Right, leaves use Key/Value.
type node struct {
	Type  nodeType
	Left  common.Hash
	Right common.Hash
	Key   common.Hash
	Value common.Hash
}

func (n *node) hash() common.Hash {
	switch n.Type {
	case nodeMiddle:
		return hashMiddle(n.Left, n.Right)
	case nodeLeaf:
		return hashLeaf(n.Key, n.Value)
	default:
		return common.Hash{}
	}
}

func hashMiddle(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

func hashLeaf(key, value common.Hash) common.Hash {
	return crypto.Keccak256Hash(key[:], value[:], leafMarker[:])
}

// bit returns the path direction for key at depth. Depth 0 is the least
// significant bit of the key read as a big-endian integer.
func bit(key common.Hash, depth int) uint8 {
	return (key[common.HashLength-1-depth/8] >> (depth % 8)) & 1
}
