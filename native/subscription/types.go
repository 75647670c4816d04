package subscription

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Window is the entitlement record of one account. Start is set by the
// first credit and never changes afterwards.
type Window struct {
	Start uint64
	End   uint64
}

// Clone returns a copy of the window.
func (w *Window) Clone() *Window {
	if w == nil {
		return nil
	}
	clone := *w
	return &clone
}

// HasRecord reports whether the window was ever credited.
func (w *Window) HasRecord() bool {
	return w != nil && w.Start != 0
}

// Active reports whether the entitlement covers now.
func (w *Window) Active(now uint64) bool {
	return w.HasRecord() && now <= w.End
}

// InDebt reports whether the entitlement lapsed before now.
func (w *Window) InDebt(now uint64) bool {
	return w.HasRecord() && now > w.End
}

// LeafValue is the canonical commitment of the window stored in the sparse
// Merkle tree: keccak256(uint256(start) ‖ uint256(end)).
func (w *Window) LeafValue() common.Hash {
	var start, end uint64
	if w != nil {
		start, end = w.Start, w.End
	}
	return crypto.Keccak256Hash(
		math.U256Bytes(new(big.Int).SetUint64(start)),
		math.U256Bytes(new(big.Int).SetUint64(end)),
	)
}

// LeafKey is the canonical tree key for an account.
func LeafKey(account [20]byte) common.Hash {
	return crypto.Keccak256Hash(account[:])
}
