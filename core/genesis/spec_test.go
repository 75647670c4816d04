package genesis

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"subsync/core"
	"subsync/crypto"
	"subsync/storage"
)

var owner = [20]byte{0x01}

func testSpec() Spec {
	alice := crypto.MustNewAddress(crypto.SubPrefix, bytes.Repeat([]byte{0xA1}, 20)).String()
	badge := crypto.MustNewAddress(crypto.SubPrefix, bytes.Repeat([]byte{0xBA}, 20)).String()
	chainID := uint64(1)
	return Spec{
		ChainID: &chainID,
		Tokens:  []TokenSpec{{Symbol: "usdx", Name: "USD Stable", Decimals: 6}},
		Alloc: map[string]map[string]string{
			alice: {"SUB": "1000", "USDX": "500"},
		},
		Prices:          map[string]string{"SUB": "10", "USDX": "4"},
		DurationFactors: map[string]string{"7776000": "900000000000000000"},
		Discounts:       map[string]string{badge: "100000000000000000"},
		BadgeCredits:    map[string]uint64{badge: 3600},
		Badges:          []BadgeSpec{{Badge: badge, TokenID: "1", Owner: alice}},
		VoucherSigner:   "0x00000000000000000000000000000000000000aa",
		Destinations:    map[string]string{"2": "0x0bee"},
		SyncGasLimit:    150_000,
	}
}

func TestLoadAndApply(t *testing.T) {
	spec := testSpec()
	data, err := json.MarshalIndent(spec, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	primary, err := core.NewPrimary(db, core.PrimaryConfig{ChainID: 1, Owner: owner}, nil)
	require.NoError(t, err)
	require.True(t, primary.Fresh())
	require.NoError(t, primary.Bootstrap(context.Background()))
	require.NoError(t, Apply(context.Background(), primary, loaded))

	alice := [20]byte{}
	copy(alice[:], bytes.Repeat([]byte{0xA1}, 20))
	badge := [20]byte{}
	copy(badge[:], bytes.Repeat([]byte{0xBA}, 20))

	balance, err := primary.Bank.Balance("usdx", alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), balance.Int64())

	price, ok, err := primary.Tokens.TokenPrice("USDX")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4), price.Int64())

	credit, ok, err := primary.BadgeSales.Credit(badge)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3600), credit)

	holder, ok, err := primary.Badges.OwnerOf(badge, big.NewInt(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, holder)

	signer, ok, err := primary.Vouchers.Signer()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(0xaa), signer[19])

	dest, ok, err := primary.Synchronizer.Destination(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(0xee), dest[31])
	require.Equal(t, byte(0x0b), dest[30])

	limit, err := primary.Synchronizer.GasLimit()
	require.NoError(t, err)
	require.Equal(t, uint64(150_000), limit)
}

func TestApplyRejectsChainMismatch(t *testing.T) {
	spec := testSpec()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	primary, err := core.NewPrimary(db, core.PrimaryConfig{ChainID: 9, Owner: owner}, nil)
	require.NoError(t, err)
	require.NoError(t, primary.Bootstrap(context.Background()))
	require.ErrorContains(t, Apply(context.Background(), primary, &spec), "chain id")
}

func TestParseRejectsInvalidSpecs(t *testing.T) {
	cases := map[string]string{
		"unknown field":   `{"validators": []}`,
		"bad alloc":       `{"alloc": {"nope": {"SUB": "1"}}}`,
		"negative amount": `{"alloc": {"0x00000000000000000000000000000000000000a1": {"SUB": "-1"}}}`,
		"zero price":      `{"prices": {"SUB": "0"}}`,
		"bad duration":    `{"durationFactors": {"0": "1"}}`,
		"bad destination": `{"destinations": {"70000": "0x01"}}`,
		"zero receiver":   `{"destinations": {"2": "0x00"}}`,
		"dup token":       `{"tokens": [{"symbol": "a", "name": "A"}, {"symbol": "A", "name": "A"}]}`,
		"many decimals":   `{"tokens": [{"symbol": "a", "name": "A", "decimals": 19}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}
