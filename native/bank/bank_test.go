package bank

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"subsync/core/events"
)

type allowanceKey struct {
	symbol         string
	owner, spender [20]byte
}

type badgeKey struct {
	badge [20]byte
	id    string
}

type mockState struct {
	tokens     map[string]bool
	balances   map[string]*big.Int
	allowances map[allowanceKey]*big.Int
	owners     map[badgeKey][20]byte
	counts     map[[40]byte]uint64
	burners    map[[40]byte]bool
}

func newMockState(tokens ...string) *mockState {
	m := &mockState{
		tokens:     make(map[string]bool),
		balances:   make(map[string]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		owners:     make(map[badgeKey][20]byte),
		counts:     make(map[[40]byte]uint64),
		burners:    make(map[[40]byte]bool),
	}
	for _, t := range tokens {
		m.tokens[t] = true
	}
	return m
}

func pair(a, b [20]byte) [40]byte {
	var out [40]byte
	copy(out[:20], a[:])
	copy(out[20:], b[:])
	return out
}

func (m *mockState) TokenExists(symbol string) bool { return m.tokens[symbol] }

func (m *mockState) Balance(addr []byte, symbol string) (*big.Int, error) {
	if v, ok := m.balances[symbol+string(addr)]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (m *mockState) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	m.balances[symbol+string(addr)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) BankAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	if v, ok := m.allowances[allowanceKey{symbol, owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (m *mockState) SetBankAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[allowanceKey{symbol, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) BadgeOwner(badge [20]byte, id *big.Int) ([20]byte, bool, error) {
	owner, ok := m.owners[badgeKey{badge, id.String()}]
	return owner, ok, nil
}

func (m *mockState) SetBadgeOwner(badge [20]byte, id *big.Int, owner [20]byte) error {
	m.owners[badgeKey{badge, id.String()}] = owner
	return nil
}

func (m *mockState) DeleteBadgeOwner(badge [20]byte, id *big.Int) error {
	delete(m.owners, badgeKey{badge, id.String()})
	return nil
}

func (m *mockState) BadgeBalance(badge, owner [20]byte) (uint64, error) {
	return m.counts[pair(badge, owner)], nil
}

func (m *mockState) SetBadgeBalance(badge, owner [20]byte, count uint64) error {
	m.counts[pair(badge, owner)] = count
	return nil
}

func (m *mockState) BadgeBurnerAllowed(badge, operator [20]byte) (bool, error) {
	return m.burners[pair(badge, operator)], nil
}

func (m *mockState) SetBadgeBurner(badge, operator [20]byte, allowed bool) error {
	m.burners[pair(badge, operator)] = allowed
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	alice   = newTestAddress(0xA1)
	bob     = newTestAddress(0xB2)
	spender = newTestAddress(0x5E)
	admin   = newTestAddress(0x01)
	badge   = newTestAddress(0xBA)
)

func newTestLedger(t *testing.T) (*Ledger, *captureEmitter) {
	t.Helper()
	ledger := NewLedger()
	ledger.SetState(newMockState("SUB", "USDX"))
	emitter := &captureEmitter{}
	ledger.SetEmitter(emitter)
	require.NoError(t, ledger.Mint("SUB", alice, big.NewInt(100)))
	emitter.events = nil
	return ledger, emitter
}

func TestTransferMovesBalance(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	require.NoError(t, ledger.Transfer("sub", alice, bob, big.NewInt(40)))

	balance, err := ledger.Balance("SUB", alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), balance.Int64())
	balance, err = ledger.Balance("SUB", bob)
	require.NoError(t, err)
	require.Equal(t, int64(40), balance.Int64())
	require.Len(t, emitter.events, 1)
	require.Equal(t, events.TypeTransfer, emitter.events[0].EventType())
}

func TestTransferValidation(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	require.True(t, errors.Is(ledger.Transfer("SUB", alice, bob, big.NewInt(101)), ErrInsufficientFunds))
	require.True(t, errors.Is(ledger.Transfer("NOPE", alice, bob, big.NewInt(1)), ErrUnknownToken))
	require.True(t, errors.Is(ledger.Transfer("SUB", alice, bob, big.NewInt(-1)), ErrInvalidAmount))
	require.True(t, errors.Is(ledger.Transfer("SUB", alice, [20]byte{}, big.NewInt(1)), ErrZeroAddress))
	require.NoError(t, ledger.Transfer("SUB", bob, alice, new(big.Int)))
	require.Empty(t, emitter.events)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.NoError(t, ledger.Approve("SUB", alice, spender, big.NewInt(50)))

	require.True(t, errors.Is(ledger.TransferFrom("SUB", spender, alice, bob, big.NewInt(51)), ErrInsufficientAllow))
	require.NoError(t, ledger.TransferFrom("SUB", spender, alice, bob, big.NewInt(30)))

	allowance, err := ledger.Allowance("SUB", alice, spender)
	require.NoError(t, err)
	require.Equal(t, int64(20), allowance.Int64())
	balance, err := ledger.Balance("SUB", bob)
	require.NoError(t, err)
	require.Equal(t, int64(30), balance.Int64())
}

func newTestRegistry(t *testing.T) (*BadgeRegistry, *captureEmitter) {
	t.Helper()
	registry := NewBadgeRegistry()
	registry.SetState(newMockState())
	registry.SetAdmin(admin)
	emitter := &captureEmitter{}
	registry.SetEmitter(emitter)
	require.NoError(t, registry.Mint(admin, badge, big.NewInt(7), alice))
	return registry, emitter
}

func TestBadgeMintAndOwnership(t *testing.T) {
	registry, emitter := newTestRegistry(t)
	owner, ok, err := registry.OwnerOf(badge, big.NewInt(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, owner)
	count, err := registry.BalanceOf(badge, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Equal(t, events.TypeBadgeMinted, emitter.events[0].EventType())

	require.True(t, errors.Is(registry.Mint(admin, badge, big.NewInt(7), bob), ErrBadgeExists))
	require.True(t, errors.Is(registry.Mint(alice, badge, big.NewInt(8), bob), ErrUnauthorized))
	_, _, err = registry.OwnerOf(badge, nil)
	require.True(t, errors.Is(err, ErrInvalidTokenID))
}

func TestBadgeBurnRequiresHolderOrOperator(t *testing.T) {
	registry, _ := newTestRegistry(t)
	require.True(t, errors.Is(registry.Burn(spender, badge, big.NewInt(7)), ErrUnauthorized))
	require.True(t, errors.Is(registry.SetBurner(alice, badge, spender, true), ErrUnauthorized))
	require.NoError(t, registry.SetBurner(admin, badge, spender, true))
	require.NoError(t, registry.Burn(spender, badge, big.NewInt(7)))

	_, ok, err := registry.OwnerOf(badge, big.NewInt(7))
	require.NoError(t, err)
	require.False(t, ok)
	count, err := registry.BalanceOf(badge, alice)
	require.NoError(t, err)
	require.Zero(t, count)
	require.True(t, errors.Is(registry.Burn(alice, badge, big.NewInt(7)), ErrBadgeNotFound))
}

func TestBadgeHolderBurnsOwnBadge(t *testing.T) {
	registry, _ := newTestRegistry(t)
	require.NoError(t, registry.Burn(alice, badge, big.NewInt(7)))
}
