package genesis

import (
	"context"
	"fmt"
	"strings"

	"subsync/core"
	"subsync/crypto"
)

// Apply seeds p with spec as one transaction signed by the chain owner.
// Entries are applied in sorted order so every node derives the same root.
func Apply(ctx context.Context, p *core.Primary, spec *Spec) error {
	if p == nil {
		return fmt.Errorf("genesis: primary chain must not be nil")
	}
	if spec == nil {
		return fmt.Errorf("genesis: spec must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	cfg := p.Config()
	if spec.ChainID != nil && *spec.ChainID != uint64(cfg.ChainID) {
		return fmt.Errorf("genesis: chain id %d does not match configured %d", *spec.ChainID, cfg.ChainID)
	}
	owner := cfg.Owner
	return p.Admin(ctx, "genesis", func() error {
		// 1) Tokens
		for _, token := range spec.Tokens {
			if err := p.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
				return fmt.Errorf("tokens[%q]: %w", token.Symbol, err)
			}
		}

		// 2) Allocations (outer: addresses sorted; inner: symbols sorted)
		for _, account := range sortedKeys(spec.Alloc) {
			addr, _ := crypto.ParseAddress(account)
			balances := spec.Alloc[account]
			for _, symbol := range sortedKeys(balances) {
				amount, _ := parseAmount(balances[symbol])
				if err := p.Bank.Mint(symbol, addr, amount); err != nil {
					return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
				}
			}
		}

		// 3) Pricing tables
		for _, token := range sortedKeys(spec.Prices) {
			price, _ := parseAmount(spec.Prices[token])
			if err := p.Tokens.AddToken(owner, token, price); err != nil {
				return fmt.Errorf("prices[%q]: %w", token, err)
			}
		}
		for _, raw := range sortedKeys(spec.DurationFactors) {
			duration, _ := parseDuration(raw)
			factor, _ := parseAmount(spec.DurationFactors[raw])
			if err := p.Tokens.SetDurationFactor(owner, duration, factor); err != nil {
				return fmt.Errorf("durationFactors[%q]: %w", raw, err)
			}
		}
		for _, raw := range sortedKeys(spec.Discounts) {
			badge, _ := crypto.ParseAddress(raw)
			discount, _ := parseAmount(spec.Discounts[raw])
			if err := p.Tokens.SetDiscount(owner, badge, discount); err != nil {
				return fmt.Errorf("discounts[%q]: %w", raw, err)
			}
		}

		// 4) Badges
		for _, raw := range sortedKeys(spec.BadgeCredits) {
			badge, _ := crypto.ParseAddress(raw)
			credit := spec.BadgeCredits[raw]
			if err := p.BadgeSales.SetBadgeCredit(owner, badge, credit); err != nil {
				return fmt.Errorf("badgeCredits[%q]: %w", raw, err)
			}
			if err := p.Badges.SetBurner(owner, badge, cfg.Addresses.Badge, credit > 0); err != nil {
				return fmt.Errorf("badgeCredits[%q]: %w", raw, err)
			}
		}
		for i, b := range spec.Badges {
			badge, _ := crypto.ParseAddress(b.Badge)
			holder, _ := crypto.ParseAddress(b.Owner)
			tokenID, _ := parseAmount(b.TokenID)
			if err := p.Badges.Mint(owner, badge, tokenID, holder); err != nil {
				return fmt.Errorf("badges[%d]: %w", i, err)
			}
		}

		// 5) Voucher signer
		if strings.TrimSpace(spec.VoucherSigner) != "" {
			signer, _ := crypto.ParseAddress(spec.VoucherSigner)
			if err := p.Vouchers.SetSigner(owner, signer); err != nil {
				return fmt.Errorf("voucherSigner: %w", err)
			}
		}

		// 6) Synchronizer
		for _, raw := range sortedKeys(spec.Destinations) {
			chainID, _ := parseChainID(raw)
			addr, _ := parseBytes32(spec.Destinations[raw])
			if err := p.Synchronizer.AddDestination(owner, chainID, addr); err != nil {
				return fmt.Errorf("destinations[%q]: %w", raw, err)
			}
		}
		if spec.SyncGasLimit > 0 {
			if err := p.Synchronizer.SetGasLimit(owner, spec.SyncGasLimit); err != nil {
				return fmt.Errorf("syncGasLimit: %w", err)
			}
		}
		return nil
	})
}
