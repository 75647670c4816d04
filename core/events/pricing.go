package events

import (
	"math/big"

	"subsync/core/types"
)

const (
	TypeSubscriptionPurchased = "pricing.subscription.purchased"
	TypeBadgeRedeemed         = "pricing.badge.redeemed"
	TypeVoucherRedeemed       = "pricing.voucher.redeemed"
	TypePriceLockUpdated      = "pricing.price_lock.updated"
	TypePricingTokenUpdated   = "pricing.token.updated"
	TypePricingTokenRemoved   = "pricing.token.removed"
	TypeDurationFactorUpdated = "pricing.duration_factor.updated"
	TypeDiscountUpdated       = "pricing.discount.updated"
	TypeBadgeCreditUpdated    = "pricing.badge_credit.updated"
	TypeVoucherSignerUpdated  = "pricing.voucher_signer.updated"
	TypePricingFundsWithdrawn = "pricing.funds.withdrawn"
)

// SubscriptionPurchased is emitted by the token strategy after a paid
// purchase.
type SubscriptionPurchased struct {
	Payer     [20]byte
	Recipient [20]byte
	Token     string
	Duration  uint64
	Cost      *big.Int
	Discount  [20]byte
}

// EventType implements the Event interface.
func (SubscriptionPurchased) EventType() string { return TypeSubscriptionPurchased }

func (e SubscriptionPurchased) Event() *types.Event {
	attrs := map[string]string{
		"payer":     formatAddress(e.Payer),
		"recipient": formatAddress(e.Recipient),
		"token":     normalizeAsset(e.Token),
		"duration":  formatUint(e.Duration),
		"cost":      formatAmount(e.Cost),
	}
	if e.Discount != ([20]byte{}) {
		attrs["discountBadge"] = formatAddress(e.Discount)
	}
	return &types.Event{Type: TypeSubscriptionPurchased, Attributes: attrs}
}

// BadgeRedeemed is emitted when a badge is burned for subscription time.
type BadgeRedeemed struct {
	Caller    [20]byte
	Recipient [20]byte
	Badge     [20]byte
	TokenID   *big.Int
	Duration  uint64
}

// EventType implements the Event interface.
func (BadgeRedeemed) EventType() string { return TypeBadgeRedeemed }

func (e BadgeRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeBadgeRedeemed, Attributes: map[string]string{
		"caller":    formatAddress(e.Caller),
		"recipient": formatAddress(e.Recipient),
		"badge":     formatAddress(e.Badge),
		"tokenId":   formatAmount(e.TokenID),
		"duration":  formatUint(e.Duration),
	}}
}

// VoucherRedeemed is emitted when a signed voucher is consumed.
type VoucherRedeemed struct {
	Signer    [20]byte
	Sender    [20]byte
	Recipient [20]byte
	Duration  uint64
	Nonce     uint64
}

// EventType implements the Event interface.
func (VoucherRedeemed) EventType() string { return TypeVoucherRedeemed }

func (e VoucherRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeVoucherRedeemed, Attributes: map[string]string{
		"signer":    formatAddress(e.Signer),
		"sender":    formatAddress(e.Sender),
		"recipient": formatAddress(e.Recipient),
		"duration":  formatUint(e.Duration),
		"nonce":     formatUint(e.Nonce),
	}}
}

// PriceLockUpdated is emitted when an account's locked unit price is first
// recorded or later lowered.
type PriceLockUpdated struct {
	Account  [20]byte
	Token    string
	Price    *big.Int
	Previous *big.Int
}

// EventType implements the Event interface.
func (PriceLockUpdated) EventType() string { return TypePriceLockUpdated }

func (e PriceLockUpdated) Event() *types.Event {
	attrs := map[string]string{
		"account": formatAddress(e.Account),
		"token":   normalizeAsset(e.Token),
		"price":   formatAmount(e.Price),
	}
	if e.Previous != nil {
		attrs["previous"] = formatAmount(e.Previous)
	}
	return &types.Event{Type: TypePriceLockUpdated, Attributes: attrs}
}

// PricingTokenUpdated is emitted when a token is added or repriced.
type PricingTokenUpdated struct {
	Token string
	Price *big.Int
}

// EventType implements the Event interface.
func (PricingTokenUpdated) EventType() string { return TypePricingTokenUpdated }

func (e PricingTokenUpdated) Event() *types.Event {
	return &types.Event{Type: TypePricingTokenUpdated, Attributes: map[string]string{
		"token": normalizeAsset(e.Token),
		"price": formatAmount(e.Price),
	}}
}

// PricingTokenRemoved is emitted when a token stops being accepted.
type PricingTokenRemoved struct {
	Token string
}

// EventType implements the Event interface.
func (PricingTokenRemoved) EventType() string { return TypePricingTokenRemoved }

func (e PricingTokenRemoved) Event() *types.Event {
	return &types.Event{Type: TypePricingTokenRemoved, Attributes: map[string]string{
		"token": normalizeAsset(e.Token),
	}}
}

// DurationFactorUpdated is emitted when a first-purchase factor is set. A
// zero factor removes the entry.
type DurationFactorUpdated struct {
	Duration uint64
	Factor   *big.Int
}

// EventType implements the Event interface.
func (DurationFactorUpdated) EventType() string { return TypeDurationFactorUpdated }

func (e DurationFactorUpdated) Event() *types.Event {
	return &types.Event{Type: TypeDurationFactorUpdated, Attributes: map[string]string{
		"duration": formatUint(e.Duration),
		"factor":   formatAmount(e.Factor),
	}}
}

// DiscountUpdated is emitted when a badge discount is set. A zero discount
// removes the entry.
type DiscountUpdated struct {
	Badge    [20]byte
	Discount *big.Int
}

// EventType implements the Event interface.
func (DiscountUpdated) EventType() string { return TypeDiscountUpdated }

func (e DiscountUpdated) Event() *types.Event {
	return &types.Event{Type: TypeDiscountUpdated, Attributes: map[string]string{
		"badge":    formatAddress(e.Badge),
		"discount": formatAmount(e.Discount),
	}}
}

// BadgeCreditUpdated is emitted when the duration credited per badge changes.
type BadgeCreditUpdated struct {
	Badge    [20]byte
	Duration uint64
}

// EventType implements the Event interface.
func (BadgeCreditUpdated) EventType() string { return TypeBadgeCreditUpdated }

func (e BadgeCreditUpdated) Event() *types.Event {
	return &types.Event{Type: TypeBadgeCreditUpdated, Attributes: map[string]string{
		"badge":    formatAddress(e.Badge),
		"duration": formatUint(e.Duration),
	}}
}

// VoucherSignerUpdated is emitted when the authorized voucher signer rotates.
type VoucherSignerUpdated struct {
	Previous [20]byte
	Signer   [20]byte
}

// EventType implements the Event interface.
func (VoucherSignerUpdated) EventType() string { return TypeVoucherSignerUpdated }

func (e VoucherSignerUpdated) Event() *types.Event {
	return &types.Event{Type: TypeVoucherSignerUpdated, Attributes: map[string]string{
		"previous": formatAddress(e.Previous),
		"signer":   formatAddress(e.Signer),
	}}
}

// PricingFundsWithdrawn is emitted when collected payments leave the module.
type PricingFundsWithdrawn struct {
	Token  string
	To     [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (PricingFundsWithdrawn) EventType() string { return TypePricingFundsWithdrawn }

func (e PricingFundsWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypePricingFundsWithdrawn, Attributes: map[string]string{
		"token":  normalizeAsset(e.Token),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}
