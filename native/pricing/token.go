package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"subsync/core/events"
	"subsync/native/fixedpoint"
)

// DefaultBasePeriod is thirty days in seconds.
const DefaultBasePeriod uint64 = 30 * 24 * 60 * 60

type tokenState interface {
	PricingTokenPrice(token string) (*big.Int, bool, error)
	SetPricingTokenPrice(token string, price *big.Int) error
	DeletePricingToken(token string) error
	PricingDurationFactor(duration uint64) (*big.Int, bool, error)
	SetPricingDurationFactor(duration uint64, factor *big.Int) error
	PricingDiscount(badge [20]byte) (*big.Int, bool, error)
	SetPricingDiscount(badge [20]byte, discount *big.Int) error
	PriceSnapshotGet(account [20]byte, token string) (*big.Int, bool, error)
	PriceSnapshotPut(account [20]byte, token string, price *big.Int) error
}

// Quote is the breakdown of a token purchase price.
type Quote struct {
	Token       string
	Duration    uint64
	UnitPrice   *big.Int
	GlobalPrice *big.Int
	Locked      bool
	Factor      *big.Int
	Discount    *big.Int
	Cost        *big.Int
}

// Purchase describes a token payment.
type Purchase struct {
	Payer     [20]byte
	Recipient [20]byte
	Token     string
	Duration  uint64
	// Value is the native currency attached to the call, already held by
	// the strategy account.
	Value *big.Int
	// DiscountBadge optionally names a badge collection from the discount
	// table the payer holds.
	DiscountBadge [20]byte
}

// TokenEngine sells entitlement time for fungible tokens. Accounts lock the
// unit price of their first purchase; later purchases pay the lower of the
// lock and the current global price.
type TokenEngine struct {
	module
	state      tokenState
	bank       TokenLedger
	badges     BadgeCollection
	basePeriod uint64
	native     string
}

// NewTokenEngine creates a token strategy with a thirty day base period.
func NewTokenEngine() *TokenEngine {
	return &TokenEngine{module: newModule(), basePeriod: DefaultBasePeriod}
}

// SetState configures the state backend used by the engine.
func (e *TokenEngine) SetState(state tokenState) { e.state = state }

// SetTokenLedger configures the fungible token collaborator.
func (e *TokenEngine) SetTokenLedger(bank TokenLedger) { e.bank = bank }

// SetBadgeCollection configures the collaborator used for discount checks.
func (e *TokenEngine) SetBadgeCollection(badges BadgeCollection) { e.badges = badges }

// SetBasePeriod configures the duration priced at one unit price.
func (e *TokenEngine) SetBasePeriod(seconds uint64) {
	if seconds == 0 {
		seconds = DefaultBasePeriod
	}
	e.basePeriod = seconds
}

// BasePeriod returns the configured base payment period.
func (e *TokenEngine) BasePeriod() uint64 { return e.basePeriod }

// SetNativeToken names the symbol paid with attached native value.
func (e *TokenEngine) SetNativeToken(symbol string) { e.native = normalizeToken(symbol) }

// NativeToken returns the native currency symbol.
func (e *TokenEngine) NativeToken() string { return e.native }

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (e *TokenEngine) isNative(token string) bool {
	return e.native != "" && token == e.native
}

// GetCost returns the price account pays for duration seconds in token.
func (e *TokenEngine) GetCost(account [20]byte, token string, duration uint64) (*big.Int, error) {
	q, err := e.Quote(account, token, duration, [20]byte{})
	if err != nil {
		return nil, err
	}
	return q.Cost, nil
}

// GetCostWithDiscount is GetCost with the discount of a badge collection
// account holds applied to the final amount.
func (e *TokenEngine) GetCostWithDiscount(account [20]byte, token string, duration uint64, badge [20]byte) (*big.Int, error) {
	if badge == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	q, err := e.Quote(account, token, duration, badge)
	if err != nil {
		return nil, err
	}
	return q.Cost, nil
}

// Quote computes the full price breakdown. A zero badge skips discounts.
func (e *TokenEngine) Quote(account [20]byte, token string, duration uint64, badge [20]byte) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	token = normalizeToken(token)
	rawPrice, ok, err := e.state.PricingTokenPrice(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, token)
	}
	if duration < e.basePeriod {
		return nil, ErrDurationTooShort
	}
	global, err := fixedpoint.FromBig(rawPrice)
	if err != nil {
		return nil, err
	}
	periods, err := fixedpoint.Periods(duration, e.basePeriod)
	if err != nil {
		return nil, err
	}

	q := &Quote{Token: token, Duration: duration, GlobalPrice: fixedpoint.ToBig(global)}
	snapshot, locked, err := e.state.PriceSnapshotGet(account, token)
	if err != nil {
		return nil, err
	}
	var cost *uint256.Int
	if locked {
		lock, err := fixedpoint.FromBig(snapshot)
		if err != nil {
			return nil, err
		}
		unit := fixedpoint.Min(lock, global)
		q.Locked = true
		q.UnitPrice = fixedpoint.ToBig(unit)
		if cost, err = fixedpoint.MulWad(periods, unit); err != nil {
			return nil, err
		}
	} else {
		q.UnitPrice = fixedpoint.ToBig(global)
		if cost, err = fixedpoint.MulWad(periods, global); err != nil {
			return nil, err
		}
		rawFactor, hasFactor, err := e.state.PricingDurationFactor(duration)
		if err != nil {
			return nil, err
		}
		if hasFactor {
			factor, err := fixedpoint.FromBig(rawFactor)
			if err != nil {
				return nil, err
			}
			if cost, err = fixedpoint.ApplyPercentage(cost, factor); err != nil {
				return nil, err
			}
			q.Factor = fixedpoint.ToBig(factor)
		}
	}

	if badge != ([20]byte{}) {
		discount, err := e.discountFor(account, badge)
		if err != nil {
			return nil, err
		}
		if cost, err = fixedpoint.ApplyDiscount(cost, discount); err != nil {
			return nil, err
		}
		q.Discount = fixedpoint.ToBig(discount)
	}
	q.Cost = fixedpoint.ToBig(cost)
	return q, nil
}

func (e *TokenEngine) discountFor(account, badge [20]byte) (*uint256.Int, error) {
	raw, ok, err := e.state.PricingDiscount(badge)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedBadge
	}
	if e.badges == nil {
		return nil, ErrBadgesNotConfigured
	}
	held, err := e.badges.BalanceOf(badge, account)
	if err != nil {
		return nil, err
	}
	if held == 0 {
		return nil, ErrNotBadgeOwner
	}
	return fixedpoint.FromBig(raw)
}

// BuySubscriptionWithDiscount is BuySubscription at the discounted cost
// granted to holders of badge. The payer must own one of its tokens.
func (e *TokenEngine) BuySubscriptionWithDiscount(p Purchase, badge [20]byte) (*Quote, error) {
	if badge == ([20]byte{}) {
		return nil, ErrUnsupportedBadge
	}
	p.DiscountBadge = badge
	return e.BuySubscription(p)
}

// BuySubscription charges the payer and credits the recipient. Native
// payments may overpay; the excess is returned to the payer.
func (e *TokenEngine) BuySubscription(p Purchase) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, ErrBankNotConfigured
	}
	if p.Recipient == ([20]byte{}) || p.Payer == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if p.Duration == 0 {
		return nil, ErrZeroDuration
	}
	value, err := fixedpoint.FromBig(p.Value)
	if err != nil {
		return nil, err
	}
	// The discount belongs to the payer while the price lock belongs to the
	// recipient whose time is being bought.
	q, err := e.Quote(p.Recipient, p.Token, p.Duration, [20]byte{})
	if err != nil {
		return nil, err
	}
	cost, _ := fixedpoint.FromBig(q.Cost)
	if p.DiscountBadge != ([20]byte{}) {
		discount, err := e.discountFor(p.Payer, p.DiscountBadge)
		if err != nil {
			return nil, err
		}
		if cost, err = fixedpoint.ApplyDiscount(cost, discount); err != nil {
			return nil, err
		}
		q.Discount = fixedpoint.ToBig(discount)
		q.Cost = fixedpoint.ToBig(cost)
	}
	if cost.IsZero() {
		return nil, ErrZeroAmount
	}

	native := e.isNative(q.Token)
	if native {
		if value.Lt(cost) {
			return nil, ErrInsufficientPayment
		}
	} else {
		if !value.IsZero() {
			return nil, ErrUnexpectedValue
		}
		allowance, err := e.bank.Allowance(q.Token, p.Payer, e.address)
		if err != nil {
			return nil, err
		}
		if allowance == nil || allowance.Cmp(q.Cost) < 0 {
			return nil, ErrInsufficientAllowance
		}
	}

	if err := e.updatePriceLock(p.Recipient, q); err != nil {
		return nil, err
	}
	if err := e.extend(p.Recipient, p.Duration); err != nil {
		return nil, err
	}

	if native {
		if excess := new(uint256.Int).Sub(value, cost); !excess.IsZero() {
			if err := e.bank.Transfer(q.Token, e.address, p.Payer, excess.ToBig()); err != nil {
				return nil, err
			}
		}
	} else {
		if err := e.bank.TransferFrom(q.Token, e.address, p.Payer, e.address, q.Cost); err != nil {
			return nil, err
		}
	}

	e.emit(events.SubscriptionPurchased{
		Payer:     p.Payer,
		Recipient: p.Recipient,
		Token:     q.Token,
		Duration:  p.Duration,
		Cost:      new(big.Int).Set(q.Cost),
		Discount:  p.DiscountBadge,
	})
	return q, nil
}

// updatePriceLock records the global price as the account's lock on the
// first purchase and lowers an existing lock when the global price dropped.
func (e *TokenEngine) updatePriceLock(account [20]byte, q *Quote) error {
	previous, locked, err := e.state.PriceSnapshotGet(account, q.Token)
	if err != nil {
		return err
	}
	if locked && previous.Cmp(q.GlobalPrice) <= 0 {
		return nil
	}
	if err := e.state.PriceSnapshotPut(account, q.Token, new(big.Int).Set(q.GlobalPrice)); err != nil {
		return err
	}
	evt := events.PriceLockUpdated{Account: account, Token: q.Token, Price: new(big.Int).Set(q.GlobalPrice)}
	if locked {
		evt.Previous = new(big.Int).Set(previous)
	}
	e.emit(evt)
	return nil
}

// PriceLock returns the locked unit price of account for token.
func (e *TokenEngine) PriceLock(account [20]byte, token string) (*big.Int, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	return e.state.PriceSnapshotGet(account, normalizeToken(token))
}

// TokenPrice returns the global unit price of token.
func (e *TokenEngine) TokenPrice(token string) (*big.Int, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	return e.state.PricingTokenPrice(normalizeToken(token))
}

// AddToken starts accepting token at price per base period.
func (e *TokenEngine) AddToken(caller [20]byte, token string, price *big.Int) error {
	return e.SetTokenPrice(caller, token, price)
}

// SetTokenPrice updates the global unit price of token.
func (e *TokenEngine) SetTokenPrice(caller [20]byte, token string, price *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	token = normalizeToken(token)
	if token == "" {
		return ErrUnsupportedToken
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if _, err := fixedpoint.FromBig(price); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if err := e.state.SetPricingTokenPrice(token, new(big.Int).Set(price)); err != nil {
		return err
	}
	e.emit(events.PricingTokenUpdated{Token: token, Price: new(big.Int).Set(price)})
	return nil
}

// RemoveToken stops accepting token. Existing price locks are kept.
func (e *TokenEngine) RemoveToken(caller [20]byte, token string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	token = normalizeToken(token)
	if _, ok, err := e.state.PricingTokenPrice(token); err != nil {
		return err
	} else if !ok {
		return ErrUnsupportedToken
	}
	if err := e.state.DeletePricingToken(token); err != nil {
		return err
	}
	e.emit(events.PricingTokenRemoved{Token: token})
	return nil
}

// SetDurationFactor sets the multiplier applied to first purchases of
// exactly duration seconds. A nil or zero factor removes the entry.
func (e *TokenEngine) SetDurationFactor(caller [20]byte, duration uint64, factor *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	if factor != nil && factor.Sign() != 0 {
		pct, err := fixedpoint.FromBig(factor)
		if err != nil || fixedpoint.ValidatePercentage(pct) != nil {
			return ErrInvalidFactor
		}
		factor = new(big.Int).Set(factor)
	} else {
		factor = nil
	}
	if err := e.state.SetPricingDurationFactor(duration, factor); err != nil {
		return err
	}
	e.emit(events.DurationFactorUpdated{Duration: duration, Factor: factor})
	return nil
}

// SetDiscount sets the discount granted to holders of badge. A nil or zero
// discount removes the entry.
func (e *TokenEngine) SetDiscount(caller, badge [20]byte, discount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if badge == ([20]byte{}) {
		return ErrZeroAddress
	}
	if discount != nil && discount.Sign() != 0 {
		pct, err := fixedpoint.FromBig(discount)
		if err != nil || fixedpoint.ValidatePercentage(pct) != nil {
			return ErrInvalidDiscount
		}
		discount = new(big.Int).Set(discount)
	} else {
		discount = nil
	}
	if err := e.state.SetPricingDiscount(badge, discount); err != nil {
		return err
	}
	e.emit(events.DiscountUpdated{Badge: badge, Discount: discount})
	return nil
}

// Withdraw moves collected funds out of the strategy account.
func (e *TokenEngine) Withdraw(caller [20]byte, token string, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if e.bank == nil {
		return ErrBankNotConfigured
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	token = normalizeToken(token)
	if err := e.bank.Transfer(token, e.address, to, new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emit(events.PricingFundsWithdrawn{Token: token, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
