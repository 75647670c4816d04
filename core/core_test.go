package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"subsync/core/events"
	"subsync/native/bank"
	"subsync/native/mirror"
	"subsync/native/pricing"
	"subsync/native/receiver"
	"subsync/native/synchronizer"
	"subsync/network"
	"subsync/storage"
)

var (
	owner     = [20]byte{0x01}
	alice     = [20]byte{0xA1}
	bob       = [20]byte{0xB2}
	relayAddr = [20]byte{0xEE}
	collector = [20]byte{0xCC}
)

const (
	primaryChain   uint16 = 1
	secondaryChain uint16 = 2
)

type testNetwork struct {
	db        storage.Database
	primary   *Primary
	secondary *Secondary
	relay     *network.Relay
	sink      *events.Buffer
	now       int64
}

func newTestNetwork(t *testing.T) *testNetwork {
	t.Helper()
	ctx := context.Background()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	n := &testNetwork{db: db, sink: &events.Buffer{}, now: 1_000}
	clock := func() int64 { return n.now }

	primary, err := NewPrimary(db, PrimaryConfig{
		ChainID:    primaryChain,
		Owner:      owner,
		BasePeriod: 100,
	}, nil)
	require.NoError(t, err)
	primary.SetNowFunc(clock)
	primary.SetEventSink(n.sink)
	require.NoError(t, primary.Bootstrap(ctx))

	secondary, err := NewSecondary(db, SecondaryConfig{
		ChainID:         secondaryChain,
		Owner:           owner,
		HistoryCapacity: 8,
		Relay:           relayAddr,
		SourceChain:     primaryChain,
		SourceAddress:   primary.Synchronizer.PaddedAddress(),
	}, nil)
	require.NoError(t, err)
	secondary.SetNowFunc(clock)
	require.NoError(t, secondary.Bootstrap(ctx))

	relay := network.NewRelay(primaryChain, relayAddr, collector)
	relay.SetFeeSchedule(secondaryChain, network.FeeSchedule{BaseFee: big.NewInt(50)})
	relay.Register(secondaryChain, secondary.Deliver)
	primary.SetRelay(relay)

	require.NoError(t, primary.Admin(ctx, "genesis", func() error {
		if err := primary.Bank.Mint(DefaultNativeToken, alice, big.NewInt(1_000_000)); err != nil {
			return err
		}
		if err := primary.Tokens.AddToken(owner, DefaultNativeToken, big.NewInt(1_000)); err != nil {
			return err
		}
		receiver := ModuleAddress("receiver")
		return primary.Synchronizer.AddDestination(owner, secondaryChain, common.BytesToHash(receiver[:]))
	}))
	n.primary, n.secondary, n.relay = primary, secondary, relay
	n.sink.Discard()
	return n
}

func (n *testNetwork) balance(t *testing.T, account [20]byte) int64 {
	t.Helper()
	balance, err := n.primary.Bank.Balance(DefaultNativeToken, account)
	require.NoError(t, err)
	return balance.Int64()
}

// buy credits recipient with duration paid by alice.
func (n *testNetwork) buy(t *testing.T, recipient [20]byte, duration uint64) {
	t.Helper()
	_, err := n.primary.BuySubscription(context.Background(), pricing.Purchase{
		Payer:     alice,
		Recipient: recipient,
		Token:     DefaultNativeToken,
		Duration:  duration,
		Value:     big.NewInt(int64(duration) * 10),
	})
	require.NoError(t, err)
}

func TestPurchaseSyncAndMirror(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)

	quote, err := n.primary.BuySubscription(ctx, pricing.Purchase{
		Payer:     alice,
		Recipient: alice,
		Token:     "sub",
		Duration:  200,
		Value:     big.NewInt(2_500),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2_000), quote.Cost.Int64())
	require.Equal(t, int64(1_000_000-2_000), n.balance(t, alice))
	require.Equal(t, int64(2_000), n.balance(t, n.primary.Tokens.Address()))

	receipt, err := n.primary.Sync(ctx, alice, secondaryChain, big.NewInt(80))
	require.NoError(t, err)
	require.Equal(t, int64(50), receipt.Fee.Int64())
	require.Equal(t, int64(30), receipt.Refund.Int64())
	require.Equal(t, int64(50), n.balance(t, collector))
	require.Equal(t, int64(1_000_000-2_050), n.balance(t, alice))

	types := n.sink.Types()
	require.Contains(t, types, events.TypeSubscriptionPurchased)
	require.Contains(t, types, events.TypeSyncMessageSent)

	require.NoError(t, n.relay.Deliver(ctx, receipt.Sequence))
	latest, err := n.secondary.LatestRoot()
	require.NoError(t, err)
	require.True(t, latest.Known)
	require.Equal(t, receipt.Root, latest.Root)

	window, ok, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_000), window.Start)
	require.Equal(t, uint64(1_200), window.End)

	proof, err := n.primary.Proof(alice)
	require.NoError(t, err)
	require.NoError(t, n.secondary.SyncSubscription(ctx, alice, *window, proof))

	status, err := n.secondary.SubscriptionStatus(alice)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.False(t, status.InDebt)
	require.Equal(t, uint64(1_200), status.EndTime)

	n.now = 1_500
	status, err = n.secondary.SubscriptionStatus(alice)
	require.NoError(t, err)
	require.False(t, status.Active)
	require.True(t, status.InDebt)
}

func TestFailedPurchaseRevertsEscrow(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	root := n.primary.Root()

	_, err := n.primary.BuySubscription(ctx, pricing.Purchase{
		Payer:     alice,
		Recipient: alice,
		Token:     DefaultNativeToken,
		Duration:  200,
		Value:     big.NewInt(100),
	})
	require.ErrorIs(t, err, pricing.ErrInsufficientPayment)
	require.Equal(t, root, n.primary.Root())
	require.Equal(t, int64(1_000_000), n.balance(t, alice))
	require.Empty(t, n.sink.Events())

	_, ok, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEscrowRequiresFunds(t *testing.T) {
	n := newTestNetwork(t)
	_, err := n.primary.BuySubscription(context.Background(), pricing.Purchase{
		Payer:     bob,
		Recipient: bob,
		Token:     DefaultNativeToken,
		Duration:  100,
		Value:     big.NewInt(1_000),
	})
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
}

func TestSyncUnknownDestinationReverts(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	n.buy(t, alice, 100)
	before := n.balance(t, alice)

	_, err := n.primary.Sync(ctx, alice, 9, big.NewInt(100))
	require.ErrorIs(t, err, synchronizer.ErrUnknownDestination)
	require.Equal(t, before, n.balance(t, alice))
	require.Empty(t, n.relay.Pending())
}

func TestMirrorRejectsUndeliveredRoot(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	n.buy(t, alice, 100)
	_, err := n.primary.Sync(ctx, alice, secondaryChain, big.NewInt(50))
	require.NoError(t, err)

	window, _, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	proof, err := n.primary.Proof(alice)
	require.NoError(t, err)
	err = n.secondary.SyncSubscription(ctx, alice, *window, proof)
	require.ErrorIs(t, err, mirror.ErrUnknownRoot)
}

func TestOutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)

	n.buy(t, alice, 100)
	first, err := n.primary.Sync(ctx, alice, secondaryChain, big.NewInt(50))
	require.NoError(t, err)
	firstWindow, _, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	firstProof, err := n.primary.Proof(alice)
	require.NoError(t, err)

	n.now = 1_100
	n.buy(t, bob, 100)
	second, err := n.primary.Sync(ctx, alice, secondaryChain, big.NewInt(50))
	require.NoError(t, err)
	require.NotEqual(t, first.Root, second.Root)

	require.NoError(t, n.relay.Deliver(ctx, second.Sequence))
	err = n.relay.Deliver(ctx, first.Sequence)
	require.ErrorIs(t, err, receiver.ErrOutdatedMessage)

	err = n.secondary.SyncSubscription(ctx, alice, *firstWindow, firstProof)
	require.ErrorIs(t, err, mirror.ErrUnknownRoot)

	proof, err := n.primary.Proof(alice)
	require.NoError(t, err)
	require.NoError(t, n.secondary.SyncSubscription(ctx, alice, *firstWindow, proof))
}

func TestBadgeRedemption(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	badge := [20]byte{0xBA}

	require.NoError(t, n.primary.RegisterBadge(ctx, owner, badge, 3_600))
	require.NoError(t, n.primary.Admin(ctx, "mint_badge", func() error {
		return n.primary.Badges.Mint(owner, badge, big.NewInt(7), alice)
	}))

	credited, err := n.primary.BuySubscriptionWithBadge(ctx, alice, bob, badge, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, uint64(3_600), credited)

	window, ok, err := n.primary.Subscription(bob)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_000+3_600), window.End)

	_, err = n.primary.BuySubscriptionWithBadge(ctx, alice, bob, badge, big.NewInt(7))
	require.ErrorIs(t, err, pricing.ErrNotBadgeOwner)
}

func TestVoucherRedemption(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	require.NoError(t, n.primary.Admin(ctx, "set_signer", func() error {
		return n.primary.Vouchers.SetSigner(owner, signer)
	}))
	sig, err := pricing.SignVoucher(key, n.primary.Vouchers.Domain(), alice, 300, 0)
	require.NoError(t, err)

	require.NoError(t, n.primary.BuySubscriptionWithVoucher(ctx, alice, alice, 300, sig))
	err = n.primary.BuySubscriptionWithVoucher(ctx, alice, alice, 300, sig)
	require.ErrorIs(t, err, pricing.ErrInvalidSignature)

	window, ok, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_300), window.End)
}

func TestCommitSurvivesReopen(t *testing.T) {
	n := newTestNetwork(t)
	n.buy(t, alice, 100)
	root, err := n.primary.Commit()
	require.NoError(t, err)

	reopened, err := NewPrimary(n.db, PrimaryConfig{ChainID: primaryChain, Owner: owner, BasePeriod: 100}, nil)
	require.NoError(t, err)
	require.Equal(t, root, reopened.Root())
	require.NoError(t, reopened.Bootstrap(context.Background()))

	window, ok, err := reopened.Subscription(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_100), window.End)
}

func TestClosedChainRejectsTransactions(t *testing.T) {
	n := newTestNetwork(t)
	n.primary.Close()
	err := n.primary.Execute(context.Background(), "noop", func() error { return nil })
	require.True(t, errors.Is(err, ErrChainClosed))
}

func TestMirrorPause(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	require.ErrorIs(t, n.secondary.Pause(ctx, alice), mirror.ErrUnauthorized)
	require.NoError(t, n.secondary.Pause(ctx, owner))

	n.buy(t, alice, 100)
	receipt, err := n.primary.Sync(ctx, alice, secondaryChain, big.NewInt(50))
	require.NoError(t, err)
	require.NoError(t, n.relay.Deliver(ctx, receipt.Sequence))

	window, _, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	proof, err := n.primary.Proof(alice)
	require.NoError(t, err)
	require.Error(t, n.secondary.SyncSubscription(ctx, alice, *window, proof))

	require.NoError(t, n.secondary.Unpause(ctx, owner))
	require.NoError(t, n.secondary.SyncSubscription(ctx, alice, *window, proof))
}

func TestAllowanceFundedPurchase(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	const usd = "USDX"
	require.NoError(t, n.primary.Admin(ctx, "list_usd", func() error {
		if err := n.primary.RegisterToken(usd, "Dollar", 6); err != nil {
			return err
		}
		if err := n.primary.Bank.Mint(usd, bob, big.NewInt(10_000)); err != nil {
			return err
		}
		return n.primary.Tokens.AddToken(owner, usd, big.NewInt(20))
	}))
	require.NoError(t, n.primary.Transfer(ctx, usd, bob, alice, big.NewInt(5_000)))

	purchase := pricing.Purchase{Payer: alice, Recipient: alice, Token: usd, Duration: 250}
	_, err := n.primary.BuySubscription(ctx, purchase)
	require.ErrorIs(t, err, pricing.ErrInsufficientAllowance)
	_, ok, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	require.False(t, ok)

	spender := n.primary.Tokens.Address()
	require.NoError(t, n.primary.Approve(ctx, alice, usd, spender, big.NewInt(100)))
	quote, err := n.primary.BuySubscription(ctx, purchase)
	require.NoError(t, err)
	require.Equal(t, int64(50), quote.Cost.Int64())

	balance, err := n.primary.Bank.Balance(usd, alice)
	require.NoError(t, err)
	require.Equal(t, int64(4_950), balance.Int64())
	treasury, err := n.primary.Bank.Balance(usd, spender)
	require.NoError(t, err)
	require.Equal(t, int64(50), treasury.Int64())
	allowance, err := n.primary.Bank.Allowance(usd, alice, spender)
	require.NoError(t, err)
	require.Equal(t, int64(50), allowance.Int64())

	window, ok, err := n.primary.Subscription(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_250), window.End)
}
