// Package genesis loads the JSON seed tables applied to a fresh primary
// chain: token registry, allocations, pricing tables, badge credentials,
// the voucher signer and sync destinations.
package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"

	"subsync/crypto"
)

type Spec struct {
	ChainID         *uint64                      `json:"chainId,omitempty"`
	Tokens          []TokenSpec                  `json:"tokens"`
	Alloc           map[string]map[string]string `json:"alloc"`           // addr -> token -> amount
	Prices          map[string]string            `json:"prices"`          // token -> unit price per base period
	DurationFactors map[string]string            `json:"durationFactors"` // seconds -> wad percentage
	Discounts       map[string]string            `json:"discounts"`       // badge -> wad percentage
	BadgeCredits    map[string]uint64            `json:"badgeCredits"`    // badge -> seconds
	Badges          []BadgeSpec                  `json:"badges,omitempty"`
	VoucherSigner   string                       `json:"voucherSigner,omitempty"`
	Destinations    map[string]string            `json:"destinations"` // chainID -> 32-byte receiver
	SyncGasLimit    uint64                       `json:"syncGasLimit,omitempty"`
}

type TokenSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// BadgeSpec mints one badge token at genesis.
type BadgeSpec struct {
	Badge   string `json:"badge"`
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
}

func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes and validates a JSON spec. Unknown fields are rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) Validate() error {
	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := normalizeSymbol(s.Tokens[i].Symbol)
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	for _, account := range sortedKeys(s.Alloc) {
		if _, err := crypto.ParseAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		for _, symbol := range sortedKeys(s.Alloc[account]) {
			if _, err := parseAmount(s.Alloc[account][symbol]); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}
	for _, token := range sortedKeys(s.Prices) {
		amount, err := parseAmount(s.Prices[token])
		if err != nil {
			return fmt.Errorf("prices[%q]: %w", token, err)
		}
		if amount.Sign() == 0 {
			return fmt.Errorf("prices[%q]: price must be positive", token)
		}
	}
	for _, duration := range sortedKeys(s.DurationFactors) {
		if _, err := parseDuration(duration); err != nil {
			return fmt.Errorf("durationFactors[%q]: %w", duration, err)
		}
		if _, err := parseAmount(s.DurationFactors[duration]); err != nil {
			return fmt.Errorf("durationFactors[%q]: %w", duration, err)
		}
	}
	for _, badge := range sortedKeys(s.Discounts) {
		if _, err := crypto.ParseAddress(badge); err != nil {
			return fmt.Errorf("discounts[%q]: %w", badge, err)
		}
		if _, err := parseAmount(s.Discounts[badge]); err != nil {
			return fmt.Errorf("discounts[%q]: %w", badge, err)
		}
	}
	for _, badge := range sortedKeys(s.BadgeCredits) {
		if _, err := crypto.ParseAddress(badge); err != nil {
			return fmt.Errorf("badgeCredits[%q]: %w", badge, err)
		}
	}
	for i, b := range s.Badges {
		if _, err := crypto.ParseAddress(b.Badge); err != nil {
			return fmt.Errorf("badges[%d].badge: %w", i, err)
		}
		if _, err := crypto.ParseAddress(b.Owner); err != nil {
			return fmt.Errorf("badges[%d].owner: %w", i, err)
		}
		if _, err := parseAmount(b.TokenID); err != nil {
			return fmt.Errorf("badges[%d].tokenId: %w", i, err)
		}
	}
	if strings.TrimSpace(s.VoucherSigner) != "" {
		if _, err := crypto.ParseAddress(s.VoucherSigner); err != nil {
			return fmt.Errorf("voucherSigner: %w", err)
		}
	}
	for _, chain := range sortedKeys(s.Destinations) {
		if _, err := parseChainID(chain); err != nil {
			return fmt.Errorf("destinations[%q]: %w", chain, err)
		}
		if _, err := parseBytes32(s.Destinations[chain]); err != nil {
			return fmt.Errorf("destinations[%q]: %w", chain, err)
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
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

func parseDuration(value string) (uint64, error) {
	d, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

func parseChainID(value string) (uint16, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 16)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chain id %q", value)
	}
	return uint16(id), nil
}

// parseBytes32 accepts a 0x-prefixed hex string of at most 32 bytes, left
// padded, or an account address.
func parseBytes32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		addr, err := crypto.ParseAddress(trimmed)
		if err != nil {
			return out, err
		}
		copy(out[12:], addr[:])
		return out, nil
	}
	raw, err := hex.DecodeString(trimmed[2:])
	if err != nil {
		return out, fmt.Errorf("invalid hex %q: %w", value, err)
	}
	if len(raw) == 0 || len(raw) > 32 {
		return out, fmt.Errorf("invalid length %d", len(raw))
	}
	copy(out[32-len(raw):], raw)
	if out == ([32]byte{}) {
		return out, fmt.Errorf("address must not be zero")
	}
	return out, nil
}
