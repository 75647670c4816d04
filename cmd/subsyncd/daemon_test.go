package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"subsync/config"
	"subsync/native/pricing"
	"subsync/rpc"
)

var (
	operator = [20]byte{0x0f}
	alice    = [20]byte{19: 0xa1}
)

const testGenesis = `{
  "chainId": 1,
  "alloc": {
    "0x00000000000000000000000000000000000000a1": {"SUB": "1000000"},
    "0x0f00000000000000000000000000000000000000": {"SUB": "1000"}
  },
  "prices": {"SUB": "1000"}
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	genesisPath := filepath.Join(dir, "genesis.json")
	require.NoError(t, os.WriteFile(genesisPath, []byte(testGenesis), 0o644))

	cfg := config.Default()
	cfg.Node.DataDir = filepath.Join(dir, "data")
	cfg.Node.GenesisFile = genesisPath
	cfg.Primary.BasePeriodSeconds = 100
	cfg.Relay.Quotes[0].BaseFee = "5"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAssembleSyncsAndSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	d, err := assemble(ctx, cfg, operator, nil)
	require.NoError(t, err)

	secondary := d.secondaries[0].chain
	dest, ok, err := d.primary.Synchronizer.Destination(secondary.Config().ChainID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [32]byte(receiverAddress), dest)

	_, err = d.primary.BuySubscription(ctx, pricing.Purchase{
		Payer:     alice,
		Recipient: alice,
		Token:     "SUB",
		Duration:  300,
		Value:     big.NewInt(3_000),
	})
	require.NoError(t, err)
	_, err = d.primary.Sync(ctx, alice, secondary.Config().ChainID, big.NewInt(5))
	require.NoError(t, err)

	delivered, err := d.relay.DeliverAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	proof, err := d.primary.Proof(alice)
	require.NoError(t, err)
	window, ok, err := d.primary.Subscription(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, secondary.SyncSubscription(ctx, alice, *window, proof))

	require.NoError(t, d.commit())
	root := d.primary.Root()
	d.Close()

	// Reopening must not re-apply genesis and must keep the mirrored window.
	reopened, err := assemble(ctx, cfg, operator, nil)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	require.Equal(t, root, reopened.primary.Root())

	balance, err := reopened.primary.Bank.Balance("SUB", alice)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000-3_000-5), balance.Int64())

	status, err := reopened.secondaries[0].chain.SubscriptionStatus(alice)
	require.NoError(t, err)
	require.NotNil(t, status.Window)
	require.Equal(t, window.End, status.EndTime)
}

func TestAssembleRejectsMismatchedGenesis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Primary.ChainID = 9
	_, err := assemble(context.Background(), cfg, operator, nil)
	require.ErrorContains(t, err, "chain id")
}

func TestSyncKeeperAndProofSubmission(t *testing.T) {
	ctx := context.Background()
	d, err := assemble(ctx, testConfig(t), operator, nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	secondary := d.secondaries[0].chain

	// Nothing to push while the tree is empty.
	sent, err := d.keeper.tick(ctx)
	require.NoError(t, err)
	require.Zero(t, sent)

	_, err = d.primary.BuySubscription(ctx, pricing.Purchase{
		Payer:     alice,
		Recipient: alice,
		Token:     "SUB",
		Duration:  100,
		Value:     big.NewInt(1_000),
	})
	require.NoError(t, err)

	sent, err = d.keeper.tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	sent, err = d.keeper.tick(ctx)
	require.NoError(t, err)
	require.Zero(t, sent)

	balance, err := d.primary.Bank.Balance("SUB", operator)
	require.NoError(t, err)
	require.Equal(t, int64(1_000-5), balance.Int64())

	delivered, err := d.relay.DeliverAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	root, err := d.primary.SyncRoot()
	require.NoError(t, err)
	latest, err := secondary.LatestRoot()
	require.NoError(t, err)
	require.Equal(t, root, latest.Root)

	const account = "0x00000000000000000000000000000000000000a1"
	rec := httptest.NewRecorder()
	d.rpc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync/proof/"+account, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var proof rpc.ProofResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))

	window, _, err := d.primary.Subscription(alice)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"account":%q,"start":%d,"end":%d,"proof":%q}`, account, window.Start, window.End, proof.Encoded)
	path := fmt.Sprintf("/v1/mirror/%d/sync", secondary.Config().ChainID)
	rec = httptest.NewRecorder()
	d.rpc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	status, err := secondary.SubscriptionStatus(alice)
	require.NoError(t, err)
	require.NotNil(t, status.Window)
	require.Equal(t, *window, *status.Window)

	// A window the proof does not commit to is refused.
	body = fmt.Sprintf(`{"account":%q,"start":%d,"end":%d,"proof":%q}`, account, window.Start, window.End+1, proof.Encoded)
	rec = httptest.NewRecorder()
	d.rpc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}
