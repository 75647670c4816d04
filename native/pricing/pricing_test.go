package pricing

import (
	"bytes"
	"errors"
	"math/big"

	"subsync/core/events"
)

const day = uint64(24 * 60 * 60)

type snapshotKey struct {
	account [20]byte
	token   string
}

type mockState struct {
	prices    map[string]*big.Int
	factors   map[uint64]*big.Int
	discounts map[[20]byte]*big.Int
	snapshots map[snapshotKey]*big.Int
	credits   map[[20]byte]uint64
	signer    *[20]byte
	nonces    map[[20]byte]uint64
}

func newMockState() *mockState {
	return &mockState{
		prices:    make(map[string]*big.Int),
		factors:   make(map[uint64]*big.Int),
		discounts: make(map[[20]byte]*big.Int),
		snapshots: make(map[snapshotKey]*big.Int),
		credits:   make(map[[20]byte]uint64),
		nonces:    make(map[[20]byte]uint64),
	}
}

func (m *mockState) PricingTokenPrice(token string) (*big.Int, bool, error) {
	p, ok := m.prices[token]
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(p), true, nil
}

func (m *mockState) SetPricingTokenPrice(token string, price *big.Int) error {
	m.prices[token] = new(big.Int).Set(price)
	return nil
}

func (m *mockState) DeletePricingToken(token string) error {
	delete(m.prices, token)
	return nil
}

func (m *mockState) PricingDurationFactor(duration uint64) (*big.Int, bool, error) {
	f, ok := m.factors[duration]
	return f, ok, nil
}

func (m *mockState) SetPricingDurationFactor(duration uint64, factor *big.Int) error {
	if factor == nil {
		delete(m.factors, duration)
		return nil
	}
	m.factors[duration] = factor
	return nil
}

func (m *mockState) PricingDiscount(badge [20]byte) (*big.Int, bool, error) {
	d, ok := m.discounts[badge]
	return d, ok, nil
}

func (m *mockState) SetPricingDiscount(badge [20]byte, discount *big.Int) error {
	if discount == nil {
		delete(m.discounts, badge)
		return nil
	}
	m.discounts[badge] = discount
	return nil
}

func (m *mockState) PriceSnapshotGet(account [20]byte, token string) (*big.Int, bool, error) {
	p, ok := m.snapshots[snapshotKey{account, token}]
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(p), true, nil
}

func (m *mockState) PriceSnapshotPut(account [20]byte, token string, price *big.Int) error {
	m.snapshots[snapshotKey{account, token}] = new(big.Int).Set(price)
	return nil
}

func (m *mockState) BadgeCredit(badge [20]byte) (uint64, bool, error) {
	c, ok := m.credits[badge]
	return c, ok, nil
}

func (m *mockState) SetBadgeCredit(badge [20]byte, duration uint64) error {
	if duration == 0 {
		delete(m.credits, badge)
		return nil
	}
	m.credits[badge] = duration
	return nil
}

func (m *mockState) VoucherSigner() ([20]byte, bool, error) {
	if m.signer == nil {
		return [20]byte{}, false, nil
	}
	return *m.signer, true, nil
}

func (m *mockState) SetVoucherSigner(signer [20]byte) error {
	m.signer = &signer
	return nil
}

func (m *mockState) VoucherNonce(signer [20]byte) (uint64, error) {
	return m.nonces[signer], nil
}

func (m *mockState) SetVoucherNonce(signer [20]byte, nonce uint64) error {
	m.nonces[signer] = nonce
	return nil
}

type balanceKey struct {
	token   string
	account [20]byte
}

type allowanceKey struct {
	token          string
	owner, spender [20]byte
}

type mockBank struct {
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func newMockBank() *mockBank {
	return &mockBank{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (b *mockBank) credit(token string, account [20]byte, amount *big.Int) {
	key := balanceKey{token, account}
	current := b.balances[key]
	if current == nil {
		current = new(big.Int)
	}
	b.balances[key] = new(big.Int).Add(current, amount)
}

func (b *mockBank) Balance(token string, account [20]byte) (*big.Int, error) {
	if v := b.balances[balanceKey{token, account}]; v != nil {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *mockBank) Allowance(token string, owner, spender [20]byte) (*big.Int, error) {
	if v := b.allowances[allowanceKey{token, owner, spender}]; v != nil {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *mockBank) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	balance, _ := b.Balance(token, from)
	if balance.Cmp(amount) < 0 {
		return errors.New("insufficient balance")
	}
	b.balances[balanceKey{token, from}] = balance.Sub(balance, amount)
	b.credit(token, to, amount)
	return nil
}

func (b *mockBank) TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error {
	allowance, _ := b.Allowance(token, from, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.New("insufficient allowance")
	}
	if err := b.Transfer(token, from, to, amount); err != nil {
		return err
	}
	b.allowances[allowanceKey{token, from, spender}] = allowance.Sub(allowance, amount)
	return nil
}

type badgeToken struct {
	badge [20]byte
	id    string
}

type mockBadges struct {
	owners map[badgeToken][20]byte
	burner [20]byte
}

func newMockBadges() *mockBadges {
	return &mockBadges{owners: make(map[badgeToken][20]byte)}
}

func (m *mockBadges) mint(badge, owner [20]byte, id int64) {
	m.owners[badgeToken{badge, big.NewInt(id).String()}] = owner
}

func (m *mockBadges) OwnerOf(badge [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	owner, ok := m.owners[badgeToken{badge, tokenID.String()}]
	return owner, ok, nil
}

func (m *mockBadges) BalanceOf(badge, owner [20]byte) (uint64, error) {
	var n uint64
	for k, v := range m.owners {
		if k.badge == badge && v == owner {
			n++
		}
	}
	return n, nil
}

func (m *mockBadges) Burn(operator, badge [20]byte, tokenID *big.Int) error {
	if operator != m.burner {
		return errors.New("burn not authorized")
	}
	key := badgeToken{badge, tokenID.String()}
	if _, ok := m.owners[key]; !ok {
		return errors.New("unknown token")
	}
	delete(m.owners, key)
	return nil
}

type extension struct {
	caller, account [20]byte
	duration        uint64
}

type mockLedger struct {
	calls []extension
	ends  map[[20]byte]uint64
	now   uint64
}

func newMockLedger(now uint64) *mockLedger {
	return &mockLedger{ends: make(map[[20]byte]uint64), now: now}
}

func (l *mockLedger) Extend(caller, account [20]byte, duration uint64) error {
	l.calls = append(l.calls, extension{caller, account, duration})
	if _, ok := l.ends[account]; !ok {
		l.ends[account] = l.now
	}
	l.ends[account] += duration
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func tenths(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(100_000_000_000_000_000))
}

const (
	nativeToken = "SUB"
	usdToken    = "USDX"
)

var (
	testOwner    = newTestAddress(0x01)
	testTreasury = newTestAddress(0x0F)
	testPayer    = newTestAddress(0x10)
	testAccount  = newTestAddress(0x11)
	testBadge    = newTestAddress(0xB0)
)
