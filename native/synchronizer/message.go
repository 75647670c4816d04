package synchronizer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SyncMessage is the payload relayed to secondary chains.
type SyncMessage struct {
	Timestamp *big.Int
	Root      common.Hash
}

var messageArguments = abi.Arguments{
	{Name: "syncTimestamp", Type: mustType("uint256")},
	{Name: "root", Type: mustType("bytes32")},
}

func mustType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("synchronizer: abi type %s: %v", name, err))
	}
	return typ
}

// EncodeSyncMessage ABI-encodes msg as (uint256 syncTimestamp, bytes32 root).
func EncodeSyncMessage(msg SyncMessage) ([]byte, error) {
	ts := msg.Timestamp
	if ts == nil {
		ts = new(big.Int)
	}
	if ts.Sign() < 0 || ts.BitLen() > 256 {
		return nil, fmt.Errorf("synchronizer: timestamp out of range")
	}
	return messageArguments.Pack(ts, [32]byte(msg.Root))
}

// DecodeSyncMessage parses a relay payload.
func DecodeSyncMessage(payload []byte) (SyncMessage, error) {
	values, err := messageArguments.Unpack(payload)
	if err != nil {
		return SyncMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(values) != 2 {
		return SyncMessage{}, ErrMalformedMessage
	}
	ts, ok1 := values[0].(*big.Int)
	root, ok2 := values[1].([32]byte)
	if !ok1 || !ok2 {
		return SyncMessage{}, ErrMalformedMessage
	}
	return SyncMessage{Timestamp: ts, Root: root}, nil
}
