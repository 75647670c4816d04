package state

import (
	"math/big"
)

// BankAllowance returns how much spender may pull from owner.
func (m *Manager) BankAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	value, ok, err := m.getBig(joinKey(allowancePrefix, symbolBytes(symbol), owner[:], spender[:]))
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return value, nil
}

// SetBankAllowance stores the allowance; zero removes it.
func (m *Manager) SetBankAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	key := joinKey(allowancePrefix, symbolBytes(symbol), owner[:], spender[:])
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

// BadgeOwner returns the holder of a badge token.
func (m *Manager) BadgeOwner(badge [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(joinKey(badgeOwnerPrefix, badge[:], tokenIDBytes(tokenID)), &owner)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return owner, true, nil
}

// SetBadgeOwner records the holder of a badge token.
func (m *Manager) SetBadgeOwner(badge [20]byte, tokenID *big.Int, owner [20]byte) error {
	return m.KVPut(joinKey(badgeOwnerPrefix, badge[:], tokenIDBytes(tokenID)), owner)
}

// DeleteBadgeOwner forgets a burned badge token.
func (m *Manager) DeleteBadgeOwner(badge [20]byte, tokenID *big.Int) error {
	return m.KVDelete(joinKey(badgeOwnerPrefix, badge[:], tokenIDBytes(tokenID)))
}

// BadgeBalance counts the badge tokens of a collection held by owner.
func (m *Manager) BadgeBalance(badge, owner [20]byte) (uint64, error) {
	var count uint64
	if _, err := m.KVGet(joinKey(badgeBalancePrefix, badge[:], owner[:]), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetBadgeBalance stores the badge count of owner.
func (m *Manager) SetBadgeBalance(badge, owner [20]byte, count uint64) error {
	key := joinKey(badgeBalancePrefix, badge[:], owner[:])
	if count == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, count)
}

// BadgeBurnerAllowed reports whether operator may burn badges of the
// collection.
func (m *Manager) BadgeBurnerAllowed(badge, operator [20]byte) (bool, error) {
	return m.flag(joinKey(badgeBurnerPrefix, badge[:], operator[:]))
}

// SetBadgeBurner grants or revokes the burner role.
func (m *Manager) SetBadgeBurner(badge, operator [20]byte, allowed bool) error {
	return m.setFlag(joinKey(badgeBurnerPrefix, badge[:], operator[:]), allowed)
}
