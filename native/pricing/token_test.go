package pricing

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"subsync/core/events"
	"subsync/native/fixedpoint"
)

type tokenFixture struct {
	engine  *TokenEngine
	state   *mockState
	bank    *mockBank
	badges  *mockBadges
	ledger  *mockLedger
	emitter *captureEmitter
	now     uint64
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	f := &tokenFixture{
		engine:  NewTokenEngine(),
		state:   newMockState(),
		bank:    newMockBank(),
		badges:  newMockBadges(),
		emitter: &captureEmitter{},
		now:     1_700_000_000,
	}
	f.ledger = newMockLedger(f.now)
	f.engine.SetState(f.state)
	f.engine.SetTokenLedger(f.bank)
	f.engine.SetBadgeCollection(f.badges)
	f.engine.SetLedger(f.ledger)
	f.engine.SetOwner(testOwner)
	f.engine.SetAddress(testTreasury)
	f.engine.SetNativeToken(nativeToken)
	f.engine.SetEmitter(f.emitter)

	require.NoError(t, f.engine.AddToken(testOwner, usdToken, units(5)))
	require.NoError(t, f.engine.AddToken(testOwner, nativeToken, units(5)))
	f.bank.credit(usdToken, testPayer, units(1000))
	f.bank.allowances[allowanceKey{usdToken, testPayer, testTreasury}] = units(1000)
	f.emitter.events = nil
	return f
}

func (f *tokenFixture) buy(t *testing.T, duration uint64) *Quote {
	t.Helper()
	q, err := f.engine.BuySubscription(Purchase{
		Payer:     testPayer,
		Recipient: testAccount,
		Token:     usdToken,
		Duration:  duration,
	})
	require.NoError(t, err)
	return q
}

func TestTokenPurchaseLocksPrice(t *testing.T) {
	f := newTokenFixture(t)

	cost, err := f.engine.GetCost(testAccount, usdToken, 75*day)
	require.NoError(t, err)
	require.Equal(t, tenths(125), cost)

	q := f.buy(t, 75*day)
	require.Equal(t, tenths(125), q.Cost)
	require.False(t, q.Locked)
	require.Equal(t, f.now+75*day, f.ledger.ends[testAccount])

	lock, ok, err := f.engine.PriceLock(testAccount, usdToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, units(5), lock)

	q = f.buy(t, 30*day)
	require.True(t, q.Locked)
	require.Equal(t, units(5), q.Cost)
	require.Equal(t, f.now+105*day, f.ledger.ends[testAccount])

	treasury, err := f.bank.Balance(usdToken, testTreasury)
	require.NoError(t, err)
	require.Equal(t, tenths(175), treasury)

	require.Equal(t, []string{
		events.TypePriceLockUpdated,
		events.TypeSubscriptionPurchased,
		events.TypeSubscriptionPurchased,
	}, f.emitter.types())
	for _, call := range f.ledger.calls {
		require.Equal(t, testTreasury, call.caller)
	}
}

func TestTokenPriceRaiseDoesNotAffectLockedAccount(t *testing.T) {
	f := newTokenFixture(t)
	f.buy(t, 30*day)

	require.NoError(t, f.engine.SetTokenPrice(testOwner, usdToken, units(10)))

	cost, err := f.engine.GetCost(testAccount, usdToken, 30*day)
	require.NoError(t, err)
	require.Equal(t, units(5), cost)

	fresh, err := f.engine.GetCost(newTestAddress(0x55), usdToken, 30*day)
	require.NoError(t, err)
	require.Equal(t, units(10), fresh)

	q := f.buy(t, 30*day)
	require.Equal(t, units(5), q.Cost)
	lock, _, err := f.engine.PriceLock(testAccount, usdToken)
	require.NoError(t, err)
	require.Equal(t, units(5), lock)
}

func TestTokenPriceDropLowersLock(t *testing.T) {
	f := newTokenFixture(t)
	f.buy(t, 30*day)
	require.NoError(t, f.engine.SetTokenPrice(testOwner, usdToken, units(4)))
	f.emitter.events = nil

	q := f.buy(t, 30*day)
	require.Equal(t, units(4), q.Cost)

	lock, _, err := f.engine.PriceLock(testAccount, usdToken)
	require.NoError(t, err)
	require.Equal(t, units(4), lock)

	require.Len(t, f.emitter.events, 2)
	evt, ok := f.emitter.events[0].(events.PriceLockUpdated)
	require.True(t, ok)
	require.Equal(t, units(4), evt.Price)
	require.Equal(t, units(5), evt.Previous)

	// Raising the price back leaves the lowered lock in place.
	require.NoError(t, f.engine.SetTokenPrice(testOwner, usdToken, units(5)))
	cost, err := f.engine.GetCost(testAccount, usdToken, 30*day)
	require.NoError(t, err)
	require.Equal(t, units(4), cost)
}

func TestDurationFactorAppliesOnlyToFirstPurchase(t *testing.T) {
	f := newTokenFixture(t)
	require.NoError(t, f.engine.SetDurationFactor(testOwner, 90*day, fixedpoint.ToBig(fixedpoint.Percent(80))))

	first, err := f.engine.Quote(testAccount, usdToken, 90*day, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, units(12), first.Cost)
	require.NotNil(t, first.Factor)

	// Durations without an exact entry are not discounted.
	other, err := f.engine.GetCost(testAccount, usdToken, 91*day)
	require.NoError(t, err)
	require.Equal(t, 1, other.Cmp(units(15)))

	f.buy(t, 90*day)

	second, err := f.engine.Quote(testAccount, usdToken, 90*day, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, units(15), second.Cost)
	require.Nil(t, second.Factor)

	require.NoError(t, f.engine.SetDurationFactor(testOwner, 90*day, nil))
	_, ok := f.state.factors[90*day]
	require.False(t, ok)
}

func TestNativePaymentRefundsExcess(t *testing.T) {
	f := newTokenFixture(t)
	// The attached value is escrowed into the strategy account before the
	// engine runs.
	f.bank.credit(nativeToken, testTreasury, units(7))

	q, err := f.engine.BuySubscription(Purchase{
		Payer:     testPayer,
		Recipient: testAccount,
		Token:     nativeToken,
		Duration:  30 * day,
		Value:     units(7),
	})
	require.NoError(t, err)
	require.Equal(t, units(5), q.Cost)

	refund, err := f.bank.Balance(nativeToken, testPayer)
	require.NoError(t, err)
	require.Equal(t, units(2), refund)
	kept, err := f.bank.Balance(nativeToken, testTreasury)
	require.NoError(t, err)
	require.Equal(t, units(5), kept)
}

func TestNativePaymentRejectsUnderpayment(t *testing.T) {
	f := newTokenFixture(t)
	f.bank.credit(nativeToken, testTreasury, units(4))
	_, err := f.engine.BuySubscription(Purchase{
		Payer:     testPayer,
		Recipient: testAccount,
		Token:     nativeToken,
		Duration:  30 * day,
		Value:     units(4),
	})
	require.True(t, errors.Is(err, ErrInsufficientPayment))
	require.Empty(t, f.ledger.calls)
	require.Empty(t, f.state.snapshots)
	require.Empty(t, f.emitter.events)
}

func TestTokenPaymentValidation(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.engine.BuySubscription(Purchase{Payer: testPayer, Recipient: testAccount, Token: usdToken, Duration: 30 * day, Value: big.NewInt(1)})
	require.True(t, errors.Is(err, ErrUnexpectedValue))

	_, err = f.engine.BuySubscription(Purchase{Payer: testPayer, Recipient: testAccount, Token: "DOGE", Duration: 30 * day})
	require.True(t, errors.Is(err, ErrUnsupportedToken))

	_, err = f.engine.BuySubscription(Purchase{Payer: testPayer, Recipient: testAccount, Token: usdToken, Duration: 29 * day})
	require.True(t, errors.Is(err, ErrDurationTooShort))

	_, err = f.engine.BuySubscription(Purchase{Payer: testPayer, Recipient: testAccount, Token: usdToken})
	require.True(t, errors.Is(err, ErrZeroDuration))

	_, err = f.engine.BuySubscription(Purchase{Payer: testPayer, Token: usdToken, Duration: 30 * day})
	require.True(t, errors.Is(err, ErrZeroAddress))

	stranger := newTestAddress(0x77)
	_, err = f.engine.BuySubscription(Purchase{Payer: stranger, Recipient: testAccount, Token: usdToken, Duration: 30 * day})
	require.True(t, errors.Is(err, ErrInsufficientAllowance))

	require.Empty(t, f.ledger.calls)
	require.Empty(t, f.emitter.events)
}

func TestDiscountBadge(t *testing.T) {
	f := newTokenFixture(t)
	require.NoError(t, f.engine.SetDiscount(testOwner, testBadge, fixedpoint.ToBig(fixedpoint.Percent(20))))

	_, err := f.engine.GetCostWithDiscount(testAccount, usdToken, 30*day, testBadge)
	require.True(t, errors.Is(err, ErrNotBadgeOwner))

	_, err = f.engine.GetCostWithDiscount(testAccount, usdToken, 30*day, newTestAddress(0xB9))
	require.True(t, errors.Is(err, ErrUnsupportedBadge))

	f.badges.mint(testBadge, testPayer, 1)
	cost, err := f.engine.GetCostWithDiscount(testPayer, usdToken, 30*day, testBadge)
	require.NoError(t, err)
	require.Equal(t, units(4), cost)

	purchase := Purchase{
		Payer:     testPayer,
		Recipient: testAccount,
		Token:     usdToken,
		Duration:  30 * day,
	}
	_, err = f.engine.BuySubscriptionWithDiscount(purchase, [20]byte{})
	require.True(t, errors.Is(err, ErrUnsupportedBadge))

	q, err := f.engine.BuySubscriptionWithDiscount(purchase, testBadge)
	require.NoError(t, err)
	require.Equal(t, units(4), q.Cost)
	require.Equal(t, fixedpoint.ToBig(fixedpoint.Percent(20)), q.Discount)

	// Discounts are checked, never burned.
	n, err := f.badges.BalanceOf(testBadge, testPayer)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	// The lock records the global price, not the discounted one.
	lock, _, err := f.engine.PriceLock(testAccount, usdToken)
	require.NoError(t, err)
	require.Equal(t, units(5), lock)
}

func TestTokenAdminIsOwnerGated(t *testing.T) {
	f := newTokenFixture(t)
	stranger := newTestAddress(0x66)

	require.True(t, errors.Is(f.engine.AddToken(stranger, "NEW", units(1)), ErrUnauthorized))
	require.True(t, errors.Is(f.engine.SetTokenPrice(stranger, usdToken, units(1)), ErrUnauthorized))
	require.True(t, errors.Is(f.engine.RemoveToken(stranger, usdToken), ErrUnauthorized))
	require.True(t, errors.Is(f.engine.SetDurationFactor(stranger, day, units(1)), ErrUnauthorized))
	require.True(t, errors.Is(f.engine.SetDiscount(stranger, testBadge, units(1)), ErrUnauthorized))
	require.True(t, errors.Is(f.engine.Withdraw(stranger, usdToken, stranger, units(1)), ErrUnauthorized))
	require.Empty(t, f.emitter.events)

	require.True(t, errors.Is(f.engine.SetTokenPrice(testOwner, usdToken, big.NewInt(0)), ErrInvalidPrice))
	require.True(t, errors.Is(f.engine.SetDurationFactor(testOwner, day, units(2)), ErrInvalidFactor))
	require.True(t, errors.Is(f.engine.SetDiscount(testOwner, testBadge, units(2)), ErrInvalidDiscount))
	require.True(t, errors.Is(f.engine.SetDiscount(testOwner, [20]byte{}, units(1)), ErrZeroAddress))
	require.True(t, errors.Is(f.engine.RemoveToken(testOwner, "NONE"), ErrUnsupportedToken))

	require.NoError(t, f.engine.RemoveToken(testOwner, usdToken))
	_, err := f.engine.GetCost(testAccount, usdToken, 30*day)
	require.True(t, errors.Is(err, ErrUnsupportedToken))
	require.Equal(t, []string{events.TypePricingTokenRemoved}, f.emitter.types())
}

func TestWithdrawCollectedFunds(t *testing.T) {
	f := newTokenFixture(t)
	f.buy(t, 30*day)
	to := newTestAddress(0x44)

	require.True(t, errors.Is(f.engine.Withdraw(testOwner, usdToken, to, big.NewInt(0)), ErrZeroAmount))
	require.True(t, errors.Is(f.engine.Withdraw(testOwner, usdToken, [20]byte{}, units(1)), ErrZeroAddress))

	require.NoError(t, f.engine.Withdraw(testOwner, usdToken, to, units(5)))
	got, err := f.bank.Balance(usdToken, to)
	require.NoError(t, err)
	require.Equal(t, units(5), got)

	require.Error(t, f.engine.Withdraw(testOwner, usdToken, to, units(1)))

	last := f.emitter.events[len(f.emitter.events)-1]
	withdrawn, ok := last.(events.PricingFundsWithdrawn)
	require.True(t, ok)
	require.Equal(t, units(5), withdrawn.Amount)
}
