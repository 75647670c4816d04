package smt

import (
	"github.com/ethereum/go-ethereum/common"
)

// Proof is an inclusion or non-inclusion proof for Key under Root.
//
// Existence proofs carry the stored Value. Non-existence proofs either end in
// an empty slot, or in a slot occupied by another leaf reported through
// AuxKey/AuxValue.
type Proof struct {
	Root         common.Hash
	Key          common.Hash
	Value        common.Hash
	Siblings     []common.Hash
	Existence    bool
	AuxExistence bool
	AuxKey       common.Hash
	AuxValue     common.Hash
}

// Prove walks the path of key under root and collects its siblings.
func (t *Tree) Prove(root, key common.Hash) (*Proof, error) {
	proof := &Proof{
		Root:     root,
		Key:      key,
		Siblings: make([]common.Hash, t.maxDepth),
	}
	current := root
	for depth := 0; ; depth++ {
		n, err := t.load(current)
		if err != nil {
			return nil, err
		}
		switch n.Type {
		case nodeEmpty:
			return proof, nil
		case nodeLeaf:
			if n.Key == key {
				proof.Existence = true
				proof.Value = n.Value
			} else {
				proof.AuxExistence = true
				proof.AuxKey = n.Key
				proof.AuxValue = n.Value
			}
			return proof, nil
		}
		if depth >= t.maxDepth {
			return nil, ErrCorruptNode
		}
		if bit(key, depth) == 1 {
			proof.Siblings[depth] = n.Left
			current = n.Right
		} else {
			proof.Siblings[depth] = n.Right
			current = n.Left
		}
	}
}

// Verify recomputes the root committed to by p and compares it with p.Root.
// Proofs built for a different depth are rejected.
func Verify(p *Proof, maxDepth int) bool {
	if p == nil || maxDepth <= 0 || len(p.Siblings) != maxDepth {
		return false
	}
	var slot common.Hash
	switch {
	case p.Existence && p.AuxExistence:
		return false
	case p.Existence:
		slot = hashLeaf(p.Key, p.Value)
	case p.AuxExistence:
		if p.AuxKey == p.Key {
			return false
		}
		slot = hashLeaf(p.AuxKey, p.AuxValue)
	default:
		if p.Value != (common.Hash{}) {
			return false
		}
	}

	depth := 0
	for i := len(p.Siblings) - 1; i >= 0; i-- {
		if p.Siblings[i] != (common.Hash{}) {
			depth = i + 1
			break
		}
	}
	if p.AuxExistence {
		for i := 0; i < depth; i++ {
			if bit(p.AuxKey, i) != bit(p.Key, i) {
				return false
			}
		}
	}

	computed := slot
	for i := depth - 1; i >= 0; i-- {
		if bit(p.Key, i) == 1 {
			computed = hashMiddle(p.Siblings[i], computed)
		} else {
			computed = hashMiddle(computed, p.Siblings[i])
		}
	}
	return computed == p.Root
}
