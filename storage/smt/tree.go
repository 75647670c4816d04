// Package smt implements a keccak256 sparse Merkle tree whose nodes live in a
// flat, content-addressed store. The tree itself is stateless: every
// operation takes the root it should act on, so callers decide where the
// current root is kept and can roll it back with the rest of their state.
package smt

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"subsync/storage"
)

const (
	// MaxSupportedDepth bounds the configurable depth to the key width.
	MaxSupportedDepth = 256
	// DefaultDepth is the depth used when none is configured.
	DefaultDepth = 80
)

var (
	ErrInvalidDepth    = errors.New("smt: invalid max depth")
	ErrMaxDepthReached = errors.New("smt: max depth reached")
	ErrMissingNode     = errors.New("smt: missing node")
	ErrCorruptNode     = errors.New("smt: corrupt node")
)

var nodePrefix = []byte("smt/node/")

// EmptyRoot is the root of a tree with no leaves.
var EmptyRoot = common.Hash{}

// Tree provides insert, lookup and proof generation over an arena of nodes.
type Tree struct {
	store    storage.Database
	maxDepth int
}

// New returns a tree over store. maxDepth must match on every party that
// verifies proofs produced by this tree.
func New(store storage.Database, maxDepth int) (*Tree, error) {
	if store == nil {
		return nil, fmt.Errorf("smt: store required")
	}
	if maxDepth <= 0 || maxDepth > MaxSupportedDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, maxDepth)
	}
	return &Tree{store: store, maxDepth: maxDepth}, nil
}

// MaxDepth returns the configured depth.
func (t *Tree) MaxDepth() int { return t.maxDepth }

// Upsert inserts key or replaces its value and returns the new root. The
// previous root stays valid since nodes are never overwritten.
func (t *Tree) Upsert(root, key, value common.Hash) (common.Hash, error) {
	leaf := &node{Type: nodeLeaf, Key: key, Value: value}
	return t.add(leaf, root, 0)
}

// Get returns the value stored under key in the tree rooted at root.
func (t *Tree) Get(root, key common.Hash) (common.Hash, bool, error) {
	current := root
	for depth := 0; depth <= t.maxDepth; depth++ {
		n, err := t.load(current)
		if err != nil {
			return common.Hash{}, false, err
		}
		switch n.Type {
		case nodeEmpty:
			return common.Hash{}, false, nil
		case nodeLeaf:
			if n.Key == key {
				return n.Value, true, nil
			}
			return common.Hash{}, false, nil
		default:
			if bit(key, depth) == 1 {
				current = n.Right
			} else {
				current = n.Left
			}
		}
	}
	return common.Hash{}, false, ErrCorruptNode
}

func (t *Tree) add(leaf *node, at common.Hash, depth int) (common.Hash, error) {
	if depth > t.maxDepth {
		return common.Hash{}, ErrMaxDepthReached
	}
	current, err := t.load(at)
	if err != nil {
		return common.Hash{}, err
	}
	switch current.Type {
	case nodeEmpty:
		return t.save(leaf)
	case nodeLeaf:
		if current.Key == leaf.Key {
			return t.save(leaf)
		}
		return t.pushLeaf(leaf, current, depth)
	default:
		left, right := current.Left, current.Right
		if bit(leaf.Key, depth) == 1 {
			right, err = t.add(leaf, current.Right, depth+1)
		} else {
			left, err = t.add(leaf, current.Left, depth+1)
		}
		if err != nil {
			return common.Hash{}, err
		}
		return t.save(&node{Type: nodeMiddle, Left: left, Right: right})
	}
}

// pushLeaf splits a slot held by oldLeaf until the two keys diverge.
func (t *Tree) pushLeaf(newLeaf, oldLeaf *node, depth int) (common.Hash, error) {
	if depth >= t.maxDepth {
		return common.Hash{}, ErrMaxDepthReached
	}
	newBit := bit(newLeaf.Key, depth)
	oldBit := bit(oldLeaf.Key, depth)
	if newBit == oldBit {
		child, err := t.pushLeaf(newLeaf, oldLeaf, depth+1)
		if err != nil {
			return common.Hash{}, err
		}
		if newBit == 1 {
			return t.save(&node{Type: nodeMiddle, Right: child})
		}
		return t.save(&node{Type: nodeMiddle, Left: child})
	}
	newHash, err := t.save(newLeaf)
	if err != nil {
		return common.Hash{}, err
	}
	oldHash := oldLeaf.hash()
	if newBit == 1 {
		return t.save(&node{Type: nodeMiddle, Left: oldHash, Right: newHash})
	}
	return t.save(&node{Type: nodeMiddle, Left: newHash, Right: oldHash})
}

func nodeKey(hash common.Hash) []byte {
	key := make([]byte, len(nodePrefix)+common.HashLength)
	copy(key, nodePrefix)
	copy(key[len(nodePrefix):], hash[:])
	return key
}

func (t *Tree) load(hash common.Hash) (*node, error) {
	if hash == (common.Hash{}) {
		return &node{Type: nodeEmpty}, nil
	}
	data, err := t.store.Get(nodeKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	n := new(node)
	if err := rlp.DecodeBytes(data, n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptNode, err)
	}
	if n.hash() != hash {
		return nil, fmt.Errorf("%w: hash mismatch for %s", ErrCorruptNode, hash.Hex())
	}
	return n, nil
}

func (t *Tree) save(n *node) (common.Hash, error) {
	hash := n.hash()
	encoded, err := rlp.EncodeToBytes(n)
	if err != nil {
		return common.Hash{}, err
	}
	if err := t.store.Put(nodeKey(hash), encoded); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
