package state

import (
	"math/big"
)

func (m *Manager) getBig(key []byte) (*big.Int, bool, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}

// putBig stores value; nil deletes the key.
func (m *Manager) putBig(key []byte, value *big.Int) error {
	if value == nil {
		return m.KVDelete(key)
	}
	return m.KVPut(key, value)
}

// PricingTokenPrice returns the per-period price of token.
func (m *Manager) PricingTokenPrice(token string) (*big.Int, bool, error) {
	return m.getBig(joinKey(pricingPricePrefix, symbolBytes(token)))
}

// SetPricingTokenPrice stores the per-period price of token.
func (m *Manager) SetPricingTokenPrice(token string, price *big.Int) error {
	return m.putBig(joinKey(pricingPricePrefix, symbolBytes(token)), price)
}

// DeletePricingToken removes token from the accepted set.
func (m *Manager) DeletePricingToken(token string) error {
	return m.KVDelete(joinKey(pricingPricePrefix, symbolBytes(token)))
}

// PricingDurationFactor returns the first-purchase factor for duration.
func (m *Manager) PricingDurationFactor(duration uint64) (*big.Int, bool, error) {
	return m.getBig(joinKey(pricingFactorPrefix, uint64Bytes(duration)))
}

// SetPricingDurationFactor stores or, when factor is nil, removes the factor
// for duration.
func (m *Manager) SetPricingDurationFactor(duration uint64, factor *big.Int) error {
	return m.putBig(joinKey(pricingFactorPrefix, uint64Bytes(duration)), factor)
}

// PricingDiscount returns the discount granted to holders of badge.
func (m *Manager) PricingDiscount(badge [20]byte) (*big.Int, bool, error) {
	return m.getBig(joinKey(pricingDiscountPrefix, badge[:]))
}

// SetPricingDiscount stores or, when discount is nil, removes the badge
// discount.
func (m *Manager) SetPricingDiscount(badge [20]byte, discount *big.Int) error {
	return m.putBig(joinKey(pricingDiscountPrefix, badge[:]), discount)
}

// PriceSnapshotGet returns the price locked by account for token.
func (m *Manager) PriceSnapshotGet(account [20]byte, token string) (*big.Int, bool, error) {
	return m.getBig(joinKey(pricingSnapshotPrefix, account[:], symbolBytes(token)))
}

// PriceSnapshotPut stores the price locked by account for token.
func (m *Manager) PriceSnapshotPut(account [20]byte, token string, price *big.Int) error {
	return m.putBig(joinKey(pricingSnapshotPrefix, account[:], symbolBytes(token)), price)
}

// BadgeCredit returns the duration credited per redeemed badge.
func (m *Manager) BadgeCredit(badge [20]byte) (uint64, bool, error) {
	var credit uint64
	ok, err := m.KVGet(joinKey(pricingBadgePrefix, badge[:]), &credit)
	if err != nil || !ok {
		return 0, false, err
	}
	return credit, true, nil
}

// SetBadgeCredit stores the credit of badge. Zero removes the badge.
func (m *Manager) SetBadgeCredit(badge [20]byte, duration uint64) error {
	key := joinKey(pricingBadgePrefix, badge[:])
	if duration == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, duration)
}

// VoucherSigner returns the authorized voucher issuer.
func (m *Manager) VoucherSigner() ([20]byte, bool, error) {
	var signer [20]byte
	ok, err := m.KVGet(voucherSignerKey, &signer)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return signer, true, nil
}

// SetVoucherSigner stores the authorized voucher issuer.
func (m *Manager) SetVoucherSigner(signer [20]byte) error {
	if signer == ([20]byte{}) {
		return m.KVDelete(voucherSignerKey)
	}
	return m.KVPut(voucherSignerKey, signer)
}

// VoucherNonce returns the next nonce expected from signer.
func (m *Manager) VoucherNonce(signer [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(joinKey(voucherNoncePrefix, signer[:]), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// SetVoucherNonce stores the next nonce expected from signer.
func (m *Manager) SetVoucherNonce(signer [20]byte, nonce uint64) error {
	return m.KVPut(joinKey(voucherNoncePrefix, signer[:]), nonce)
}
