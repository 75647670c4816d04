package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core/state"
	"subsync/native/bank"
	"subsync/native/pricing"
	"subsync/native/subscription"
	"subsync/native/synchronizer"
	"subsync/storage"
	"subsync/storage/smt"
)

const (
	DefaultNativeToken = "SUB"
	DefaultTreeDepth   = smt.DefaultDepth
)

// PrimaryAddresses names the module accounts of the primary chain.
type PrimaryAddresses struct {
	Ledger       [20]byte
	Token        [20]byte
	Badge        [20]byte
	Voucher      [20]byte
	Synchronizer [20]byte
}

// DefaultPrimaryAddresses derives every module account from its name.
func DefaultPrimaryAddresses() PrimaryAddresses {
	return PrimaryAddresses{
		Ledger:       ModuleAddress("subscription"),
		Token:        ModuleAddress("pricing/token"),
		Badge:        ModuleAddress("pricing/badge"),
		Voucher:      ModuleAddress("pricing/voucher"),
		Synchronizer: ModuleAddress("synchronizer"),
	}
}

// PrimaryConfig parameterizes the primary chain.
type PrimaryConfig struct {
	ChainID        uint16
	Owner          [20]byte
	NativeToken    string
	NativeName     string
	BasePeriod     uint64
	TreeDepth      int
	VoucherName    string
	VoucherVersion string
	AllowMigrate   bool
	Addresses      PrimaryAddresses
}

func (c *PrimaryConfig) applyDefaults() {
	if strings.TrimSpace(c.NativeToken) == "" {
		c.NativeToken = DefaultNativeToken
	}
	c.NativeToken = strings.ToUpper(strings.TrimSpace(c.NativeToken))
	if c.NativeName == "" {
		c.NativeName = c.NativeToken
	}
	if c.TreeDepth <= 0 {
		c.TreeDepth = DefaultTreeDepth
	}
	if c.VoucherName == "" {
		c.VoucherName = pricing.DefaultVoucherName
	}
	if c.VoucherVersion == "" {
		c.VoucherVersion = pricing.DefaultVoucherVersion
	}
	if c.Addresses == (PrimaryAddresses{}) {
		c.Addresses = DefaultPrimaryAddresses()
	}
}

// Primary is the chain holding the entitlement ledger. Payment strategies
// extend windows; the synchronizer commits every change to the tree and
// ships roots to secondary chains.
type Primary struct {
	*Chain
	cfg PrimaryConfig

	Bank         *bank.Ledger
	Badges       *bank.BadgeRegistry
	Ledger       *subscription.Engine
	Tokens       *pricing.TokenEngine
	BadgeSales   *pricing.BadgeEngine
	Vouchers     *pricing.VoucherEngine
	Synchronizer *synchronizer.Engine
	Tree         *smt.Tree
}

// NewPrimary opens the primary chain over db and wires its modules.
func NewPrimary(db storage.Database, cfg PrimaryConfig, logger *slog.Logger) (*Primary, error) {
	cfg.applyDefaults()
	chain, err := openChain("primary", db, logger)
	if err != nil {
		return nil, err
	}
	tree, err := smt.New(db, cfg.TreeDepth)
	if err != nil {
		return nil, fmt.Errorf("core: open tree: %w", err)
	}
	p := &Primary{
		Chain:        chain,
		cfg:          cfg,
		Bank:         bank.NewLedger(),
		Badges:       bank.NewBadgeRegistry(),
		Ledger:       subscription.NewEngine(),
		Tokens:       pricing.NewTokenEngine(),
		BadgeSales:   pricing.NewBadgeEngine(),
		Vouchers:     pricing.NewVoucherEngine(),
		Synchronizer: synchronizer.NewEngine(),
		Tree:         tree,
	}
	p.wire()
	return p, nil
}

func (p *Primary) wire() {
	st := p.state
	now := func() int64 { return p.now() }
	addrs := p.cfg.Addresses

	p.Bank.SetState(st)
	p.Bank.SetEmitter(p.buffer)
	p.Badges.SetState(st)
	p.Badges.SetAdmin(p.cfg.Owner)
	p.Badges.SetEmitter(p.buffer)

	p.Synchronizer.SetState(st)
	p.Synchronizer.SetTree(p.Tree)
	p.Synchronizer.SetBank(p.Bank)
	p.Synchronizer.SetNativeToken(p.cfg.NativeToken)
	p.Synchronizer.SetPauses(st)
	p.Synchronizer.SetEmitter(p.buffer)
	p.Synchronizer.SetNowFunc(now)
	p.Synchronizer.SetOwner(p.cfg.Owner)
	p.Synchronizer.SetAddress(addrs.Synchronizer)

	p.Ledger.SetState(st)
	p.Ledger.SetEmitter(p.buffer)
	p.Ledger.SetNowFunc(now)
	p.Ledger.SetSyncHook(p.Synchronizer)
	p.Ledger.SetOwner(p.cfg.Owner)
	p.Ledger.SetAddress(addrs.Ledger)

	p.Tokens.SetState(st)
	p.Tokens.SetTokenLedger(p.Bank)
	p.Tokens.SetBadgeCollection(p.Badges)
	p.Tokens.SetBasePeriod(p.cfg.BasePeriod)
	p.Tokens.SetNativeToken(p.cfg.NativeToken)
	p.Tokens.SetEmitter(p.buffer)
	p.Tokens.SetPauses(st)
	p.Tokens.SetLedger(p.Ledger)
	p.Tokens.SetOwner(p.cfg.Owner)
	p.Tokens.SetAddress(addrs.Token)

	p.BadgeSales.SetState(st)
	p.BadgeSales.SetBadgeCollection(p.Badges)
	p.BadgeSales.SetEmitter(p.buffer)
	p.BadgeSales.SetPauses(st)
	p.BadgeSales.SetLedger(p.Ledger)
	p.BadgeSales.SetOwner(p.cfg.Owner)
	p.BadgeSales.SetAddress(addrs.Badge)

	p.Vouchers.SetState(st)
	p.Vouchers.SetDomain(pricing.Domain{
		Name:              p.cfg.VoucherName,
		Version:           p.cfg.VoucherVersion,
		ChainID:           new(big.Int).SetUint64(uint64(p.cfg.ChainID)),
		VerifyingContract: addrs.Voucher,
	})
	p.Vouchers.SetEmitter(p.buffer)
	p.Vouchers.SetPauses(st)
	p.Vouchers.SetLedger(p.Ledger)
	p.Vouchers.SetOwner(p.cfg.Owner)
	p.Vouchers.SetAddress(addrs.Voucher)
}

// Config returns the effective configuration.
func (p *Primary) Config() PrimaryConfig { return p.cfg }

// SetRelay connects the synchronizer to the message relay.
func (p *Primary) SetRelay(relay synchronizer.Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Synchronizer.SetRelay(relay)
}

// Bootstrap stamps the state version, registers the native token and grants
// the strategies and the ledger their roles. It is safe to call on every
// start.
func (p *Primary) Bootstrap(ctx context.Context) error {
	return p.Execute(ctx, "bootstrap", func() error {
		if err := state.EnsureStateVersion(p.state, p.cfg.AllowMigrate); err != nil {
			return err
		}
		if err := p.RegisterToken(p.cfg.NativeToken, p.cfg.NativeName, 18); err != nil {
			return err
		}
		owner := p.cfg.Owner
		for _, extender := range [][20]byte{p.cfg.Addresses.Token, p.cfg.Addresses.Badge, p.cfg.Addresses.Voucher} {
			allowed, err := p.state.SubscriptionExtenderAllowed(extender)
			if err != nil {
				return err
			}
			if allowed {
				continue
			}
			if err := p.Ledger.AddExtender(owner, extender); err != nil {
				return err
			}
		}
		allowed, err := p.state.SyncWriterAllowed(p.cfg.Addresses.Ledger)
		if err != nil {
			return err
		}
		if !allowed {
			return p.Synchronizer.AddWriter(owner, p.cfg.Addresses.Ledger)
		}
		return nil
	})
}

// RegisterToken adds symbol to the token registry inside a running
// transaction. An existing symbol is left untouched.
func (p *Primary) RegisterToken(symbol, name string, decimals uint8) error {
	if p.state.TokenExists(symbol) {
		return nil
	}
	return p.state.RegisterToken(symbol, name, decimals)
}

func (p *Primary) isNative(token string) bool {
	return strings.EqualFold(strings.TrimSpace(token), p.cfg.NativeToken)
}

// escrow moves native value attached by caller into a module account.
func (p *Primary) escrow(caller, module [20]byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	if value.Sign() < 0 {
		return bank.ErrInvalidAmount
	}
	return p.Bank.Transfer(p.cfg.NativeToken, caller, module, value)
}

// BuySubscription pays for purchase.Duration with purchase.Token. Native
// value is taken from the payer before pricing runs.
func (p *Primary) BuySubscription(ctx context.Context, purchase pricing.Purchase) (*pricing.Quote, error) {
	var quote *pricing.Quote
	err := p.Execute(ctx, "buy_subscription", func() error {
		if p.isNative(purchase.Token) {
			if err := p.escrow(purchase.Payer, p.Tokens.Address(), purchase.Value); err != nil {
				return err
			}
		}
		q, err := p.Tokens.BuySubscription(purchase)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// BuySubscriptionWithBadge redeems badge token tokenID held by caller.
func (p *Primary) BuySubscriptionWithBadge(ctx context.Context, caller, recipient, badge [20]byte, tokenID *big.Int) (uint64, error) {
	var credited uint64
	err := p.Execute(ctx, "buy_subscription_with_badge", func() error {
		d, err := p.BadgeSales.BuySubscriptionWithBadge(caller, recipient, badge, tokenID)
		credited = d
		return err
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// BuySubscriptionWithVoucher redeems a signed voucher for sender.
func (p *Primary) BuySubscriptionWithVoucher(ctx context.Context, sender, recipient [20]byte, duration uint64, signature []byte) error {
	return p.Execute(ctx, "buy_subscription_with_voucher", func() error {
		return p.Vouchers.BuySubscriptionWithVoucher(sender, recipient, duration, signature)
	})
}

// Approve lets spender move amount of token on behalf of owner.
func (p *Primary) Approve(ctx context.Context, owner [20]byte, token string, spender [20]byte, amount *big.Int) error {
	return p.Execute(ctx, "approve", func() error {
		return p.Bank.Approve(token, owner, spender, amount)
	})
}

// Transfer moves amount of token between accounts.
func (p *Primary) Transfer(ctx context.Context, token string, from, to [20]byte, amount *big.Int) error {
	return p.Execute(ctx, "transfer", func() error {
		return p.Bank.Transfer(token, from, to, amount)
	})
}

// Sync ships the current root to chainID. value is the native fee budget;
// the unused part is refunded to caller.
func (p *Primary) Sync(ctx context.Context, caller [20]byte, chainID uint16, value *big.Int) (*synchronizer.Receipt, error) {
	var receipt *synchronizer.Receipt
	err := p.Execute(ctx, "sync", func() error {
		if err := p.escrow(caller, p.Synchronizer.Address(), value); err != nil {
			return err
		}
		r, err := p.Synchronizer.Sync(caller, chainID, value)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Subscription returns the window of account on the primary ledger.
func (p *Primary) Subscription(account [20]byte) (*subscription.Window, bool, error) {
	var (
		window *subscription.Window
		ok     bool
	)
	err := p.View(func() error {
		var err error
		window, ok, err = p.Ledger.Subscription(account)
		return err
	})
	return window, ok, err
}

// Status summarizes account for recovery workflows.
type Status struct {
	Window  *subscription.Window
	Active  bool
	InDebt  bool
	EndTime uint64
}

// SubscriptionStatus reads every ledger predicate for account under one
// lock.
func (p *Primary) SubscriptionStatus(account [20]byte) (*Status, error) {
	var status Status
	err := p.View(func() error {
		return readStatus(p.Ledger, account, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

type statusReader interface {
	Subscription(account [20]byte) (*subscription.Window, bool, error)
	HasActiveSubscription(account [20]byte) (bool, error)
	HasSubscriptionDebt(account [20]byte) (bool, error)
	GetSubscriptionEndTime(account [20]byte) (uint64, error)
}

func readStatus(r statusReader, account [20]byte, out *Status) error {
	window, ok, err := r.Subscription(account)
	if err != nil {
		return err
	}
	if ok {
		out.Window = window
	}
	if out.Active, err = r.HasActiveSubscription(account); err != nil {
		return err
	}
	if out.InDebt, err = r.HasSubscriptionDebt(account); err != nil {
		return err
	}
	out.EndTime, err = r.GetSubscriptionEndTime(account)
	return err
}

// Cost quotes duration seconds of token for account.
func (p *Primary) Cost(account [20]byte, token string, duration uint64, badge [20]byte) (*pricing.Quote, error) {
	var quote *pricing.Quote
	err := p.View(func() error {
		q, err := p.Tokens.Quote(account, token, duration, badge)
		quote = q
		return err
	})
	return quote, err
}

// SyncRoot returns the current tree root.
func (p *Primary) SyncRoot() (common.Hash, error) {
	var root common.Hash
	err := p.View(func() error {
		r, err := p.Synchronizer.Root()
		root = r
		return err
	})
	return root, err
}

// Proof proves the leaf of account against the current root.
func (p *Primary) Proof(account [20]byte) (*smt.Proof, error) {
	var proof *smt.Proof
	err := p.View(func() error {
		pr, err := p.Synchronizer.Proof(account)
		proof = pr
		return err
	})
	return proof, err
}

// QuoteSync returns the native fee Sync currently charges for chainID.
func (p *Primary) QuoteSync(chainID uint16) (*big.Int, error) {
	var fee *big.Int
	err := p.View(func() error {
		f, err := p.Synchronizer.QuoteCrossChainCost(chainID)
		fee = f
		return err
	})
	return fee, err
}

// SubscriptionProof reads the window of account together with its proof
// against the current root, so the pair can be submitted to a mirror as is.
func (p *Primary) SubscriptionProof(account [20]byte) (*subscription.Window, *smt.Proof, error) {
	var (
		window *subscription.Window
		proof  *smt.Proof
	)
	err := p.View(func() error {
		w, ok, err := p.Ledger.Subscription(account)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %x", ErrNoSubscription, account)
		}
		if proof, err = p.Synchronizer.Proof(account); err != nil {
			return err
		}
		window = w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return window, proof, nil
}

// Admin runs an owner operation as one transaction.
func (p *Primary) Admin(ctx context.Context, op string, fn func() error) error {
	return p.Execute(ctx, op, fn)
}

// RegisterBadge makes badge redeemable for credit seconds and lets the
// badge strategy burn redeemed tokens. A zero credit retires the badge.
func (p *Primary) RegisterBadge(ctx context.Context, caller, badge [20]byte, credit uint64) error {
	return p.Execute(ctx, "register_badge", func() error {
		if err := p.BadgeSales.SetBadgeCredit(caller, badge, credit); err != nil {
			return err
		}
		return p.Badges.SetBurner(caller, badge, p.cfg.Addresses.Badge, credit > 0)
	})
}
