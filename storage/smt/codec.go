package smt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var proofArguments = abi.Arguments{
	{Name: "root", Type: mustType("bytes32")},
	{Name: "key", Type: mustType("bytes32")},
	{Name: "value", Type: mustType("bytes32")},
	{Name: "siblings", Type: mustType("bytes32[]")},
	{Name: "existence", Type: mustType("bool")},
	{Name: "auxExistence", Type: mustType("bool")},
	{Name: "auxKey", Type: mustType("bytes32")},
	{Name: "auxValue", Type: mustType("bytes32")},
}

func mustType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("smt: abi type %s: %v", name, err))
	}
	return typ
}

// EncodeProof ABI-encodes the proof as the tuple relayers submit on the
// secondary chain.
func EncodeProof(p *Proof) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("smt: nil proof")
	}
	siblings := make([][32]byte, len(p.Siblings))
	for i, s := range p.Siblings {
		siblings[i] = s
	}
	return proofArguments.Pack(
		[32]byte(p.Root),
		[32]byte(p.Key),
		[32]byte(p.Value),
		siblings,
		p.Existence,
		p.AuxExistence,
		[32]byte(p.AuxKey),
		[32]byte(p.AuxValue),
	)
}

// DecodeProof parses the ABI tuple produced by EncodeProof.
func DecodeProof(data []byte) (*Proof, error) {
	values, err := proofArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("smt: decode proof: %w", err)
	}
	if len(values) != len(proofArguments) {
		return nil, fmt.Errorf("smt: decode proof: expected %d fields, got %d", len(proofArguments), len(values))
	}
	root, ok1 := values[0].([32]byte)
	key, ok2 := values[1].([32]byte)
	value, ok3 := values[2].([32]byte)
	rawSiblings, ok4 := values[3].([][32]byte)
	existence, ok5 := values[4].(bool)
	auxExistence, ok6 := values[5].(bool)
	auxKey, ok7 := values[6].([32]byte)
	auxValue, ok8 := values[7].([32]byte)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, fmt.Errorf("smt: decode proof: unexpected field types")
	}
	siblings := make([]common.Hash, len(rawSiblings))
	for i, s := range rawSiblings {
		siblings[i] = s
	}
	return &Proof{
		Root:         root,
		Key:          key,
		Value:        value,
		Siblings:     siblings,
		Existence:    existence,
		AuxExistence: auxExistence,
		AuxKey:       auxKey,
		AuxValue:     auxValue,
	}, nil
}
