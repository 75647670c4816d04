package config

import (
	"fmt"
	"math/big"
	"strings"

	"subsync/crypto"
	"subsync/storage/smt"
)

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

// Validate checks cross-field invariants that decoding alone cannot catch.
func (c *Config) Validate() error {
	if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(c.Log.Level))]; !ok {
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: address must be set")
	}
	if c.Primary.ChainID == 0 {
		return fmt.Errorf("primary: chain id must be non-zero")
	}
	if c.Primary.TreeDepth < 1 || c.Primary.TreeDepth > smt.MaxSupportedDepth {
		return fmt.Errorf("primary: tree depth must be within 1..%d", smt.MaxSupportedDepth)
	}
	if len(c.Secondaries) == 0 {
		return fmt.Errorf("secondary: at least one chain required")
	}
	seen := map[uint16]struct{}{c.Primary.ChainID: {}}
	for i, sec := range c.Secondaries {
		if sec.ChainID == 0 {
			return fmt.Errorf("secondary[%d]: chain id must be non-zero", i)
		}
		if _, dup := seen[sec.ChainID]; dup {
			return fmt.Errorf("secondary[%d]: chain id %d already in use", i, sec.ChainID)
		}
		seen[sec.ChainID] = struct{}{}
		if sec.HistoryCapacity < 0 {
			return fmt.Errorf("secondary[%d]: history capacity must not be negative", i)
		}
	}

	if _, err := c.RelayAddress(); err != nil {
		return fmt.Errorf("relay: address: %w", err)
	}
	if _, err := c.FeeCollector(); err != nil {
		return fmt.Errorf("relay: fee collector: %w", err)
	}
	if c.Relay.SyncIntervalSeconds < 0 {
		return fmt.Errorf("relay: sync interval must not be negative")
	}
	quoted := make(map[uint16]struct{}, len(c.Relay.Quotes))
	for i, q := range c.Relay.Quotes {
		if _, ok := seen[q.ChainID]; !ok || q.ChainID == c.Primary.ChainID {
			return fmt.Errorf("relay: quote[%d]: chain %d is not a secondary", i, q.ChainID)
		}
		if _, dup := quoted[q.ChainID]; dup {
			return fmt.Errorf("relay: quote[%d]: duplicate chain %d", i, q.ChainID)
		}
		quoted[q.ChainID] = struct{}{}
		if _, err := ParseAmount(q.BaseFee); err != nil {
			return fmt.Errorf("relay: quote[%d]: base fee: %w", i, err)
		}
		if _, err := ParseAmount(q.GasPrice); err != nil {
			return fmt.Errorf("relay: quote[%d]: gas price: %w", i, err)
		}
	}
	for _, sec := range c.Secondaries {
		if _, ok := quoted[sec.ChainID]; !ok {
			return fmt.Errorf("relay: no quote for chain %d", sec.ChainID)
		}
	}
	return nil
}

// RelayAddress returns the account the secondaries accept deliveries from.
func (c *Config) RelayAddress() ([20]byte, error) {
	return crypto.ParseAddress(c.Relay.Address)
}

// FeeCollector returns the account relay fees are paid to.
func (c *Config) FeeCollector() ([20]byte, error) {
	return crypto.ParseAddress(c.Relay.FeeCollector)
}

// ParseAmount parses a non-negative decimal amount. Empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
