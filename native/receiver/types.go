package receiver

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config names the only parties allowed to deliver roots.
type Config struct {
	Relay         [20]byte
	SourceChain   uint16
	SourceAddress [32]byte
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Checkpoint is the last accepted root together with its sync timestamp.
type Checkpoint struct {
	Root      common.Hash
	Timestamp *big.Int
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := &Checkpoint{Root: c.Root, Timestamp: new(big.Int)}
	if c.Timestamp != nil {
		clone.Timestamp.Set(c.Timestamp)
	}
	return clone
}
