package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subsync/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "operator.keystore")
	contents := fmt.Sprintf(`[node]
DataDir = "./data"
GenesisFile = "genesis.json"
OperatorKeystorePath = "%s"
CommitIntervalSeconds = 3

[log]
Level = "debug"
File = "./subsyncd.log"
MaxSizeMB = 10

[rpc]
Address = "127.0.0.1:9000"
RateLimit = 12.5
Burst = 20

[primary]
ChainID = 10
NativeToken = "sub"
BasePeriodSeconds = 86400
TreeDepth = 16

[[secondary]]
ChainID = 20
HistoryCapacity = 32

[[secondary]]
ChainID = 30

[relay]
Address = "0x00000000000000000000000000000000000000e1"
FeeCollector = "0x00000000000000000000000000000000000000fc"
MaxAttempts = 5

[[relay.Quote]]
ChainID = 20
BaseFee = "100"
GasPrice = "2"

[[relay.Quote]]
ChainID = 30
BaseFee = "7"
`, keystorePath)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase), WithKeystoreScrypt(crypto.LightScrypt))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Node.DataDir != "./data" || cfg.Node.GenesisFile != "genesis.json" {
		t.Fatalf("unexpected node section: %+v", cfg.Node)
	}
	if cfg.Node.CommitIntervalSeconds != 3 {
		t.Fatalf("unexpected commit interval: %d", cfg.Node.CommitIntervalSeconds)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("unexpected log section: %+v", cfg.Log)
	}
	if cfg.RPC.Address != "127.0.0.1:9000" || cfg.RPC.RateLimit != 12.5 || cfg.RPC.Burst != 20 {
		t.Fatalf("unexpected rpc section: %+v", cfg.RPC)
	}
	if cfg.Primary.ChainID != 10 || cfg.Primary.TreeDepth != 16 || cfg.Primary.BasePeriodSeconds != 86400 {
		t.Fatalf("unexpected primary section: %+v", cfg.Primary)
	}
	if cfg.Primary.NativeToken != "SUB" {
		t.Fatalf("expected native token to be normalised, got %q", cfg.Primary.NativeToken)
	}
	if len(cfg.Secondaries) != 2 || cfg.Secondaries[0].ChainID != 20 || cfg.Secondaries[1].ChainID != 30 {
		t.Fatalf("unexpected secondaries: %+v", cfg.Secondaries)
	}
	if cfg.Secondaries[0].HistoryCapacity != 32 {
		t.Fatalf("unexpected history capacity: %d", cfg.Secondaries[0].HistoryCapacity)
	}
	if len(cfg.Relay.Quotes) != 2 || cfg.Relay.Quotes[0].BaseFee != "100" || cfg.Relay.Quotes[0].GasPrice != "2" {
		t.Fatalf("unexpected quotes: %+v", cfg.Relay.Quotes)
	}
	if cfg.Relay.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts: %d", cfg.Relay.MaxAttempts)
	}
	if cfg.Relay.DeliveryIntervalMillis != DefaultDeliveryIntervalMs {
		t.Fatalf("expected default delivery interval, got %d", cfg.Relay.DeliveryIntervalMillis)
	}
	relay, err := cfg.RelayAddress()
	if err != nil {
		t.Fatalf("relay address: %v", err)
	}
	if relay[19] != 0xe1 {
		t.Fatalf("unexpected relay address: %x", relay)
	}
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("expected keystore to be created: %v", err)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `node:
  dataDir: ./yaml-data
primary:
  chainId: 1
secondaries:
  - chainId: 5
relay:
  address: "0x00000000000000000000000000000000000000e1"
  feeCollector: "0x00000000000000000000000000000000000000fc"
  quotes:
    - chainId: 5
      baseFee: "9"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase), WithKeystoreScrypt(crypto.LightScrypt))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Node.DataDir != "./yaml-data" {
		t.Fatalf("unexpected data dir: %s", cfg.Node.DataDir)
	}
	if len(cfg.Secondaries) != 1 || cfg.Secondaries[0].ChainID != 5 {
		t.Fatalf("unexpected secondaries: %+v", cfg.Secondaries)
	}
	if cfg.Primary.TreeDepth != DefaultTreeDepth {
		t.Fatalf("expected default tree depth, got %d", cfg.Primary.TreeDepth)
	}
	if cfg.Node.OperatorKeystorePath != filepath.Join(dir, "operator.keystore") {
		t.Fatalf("unexpected keystore path: %s", cfg.Node.OperatorKeystorePath)
	}

	// The resolved keystore path is written back in the same format.
	reloaded, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase), WithKeystoreScrypt(crypto.LightScrypt))
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.Node.OperatorKeystorePath != cfg.Node.OperatorKeystorePath {
		t.Fatalf("keystore path not persisted: %s", reloaded.Node.OperatorKeystorePath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	cases := map[string]string{
		"config.toml": "[node]\nDataDir = \"./data\"\nValidatorKeystorePath = \"x\"\n",
		"config.yaml": "node:\n  dataDir: ./data\n  mempool: 10\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase), WithKeystoreScrypt(crypto.LightScrypt)); err == nil {
				t.Fatalf("expected unknown key to be rejected")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"default is valid": {mutate: func(*Config) {}},
		"zero primary": {
			mutate: func(c *Config) { c.Primary.ChainID = 0 },
			want:   "primary: chain id",
		},
		"depth too large": {
			mutate: func(c *Config) { c.Primary.TreeDepth = 257 },
			want:   "tree depth",
		},
		"secondary shares primary id": {
			mutate: func(c *Config) { c.Secondaries[0].ChainID = c.Primary.ChainID },
			want:   "already in use",
		},
		"missing quote": {
			mutate: func(c *Config) { c.Relay.Quotes = nil },
			want:   "no quote for chain 2",
		},
		"negative fee": {
			mutate: func(c *Config) { c.Relay.Quotes[0].BaseFee = "-1" },
			want:   "base fee",
		},
		"quote for unknown chain": {
			mutate: func(c *Config) { c.Relay.Quotes[0].ChainID = 99 },
			want:   "not a secondary",
		},
		"negative sync interval": {
			mutate: func(c *Config) { c.Relay.SyncIntervalSeconds = -1 },
			want:   "sync interval",
		},
		"bad relay address": {
			mutate: func(c *Config) { c.Relay.Address = "nope" },
			want:   "relay: address",
		},
		"bad log level": {
			mutate: func(c *Config) { c.Log.Level = "loud" },
			want:   "log: unknown level",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadWithoutPassphraseFailsToCreateDefault(t *testing.T) {
	t.Setenv(DefaultPassphraseEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")

	if _, err := Load(path, WithKeystoreScrypt(crypto.LightScrypt)); err == nil {
		t.Fatalf("expected error when no keystore passphrase is provided")
	}
}

func TestLoadCreatesDefaultWithEnvPassphrase(t *testing.T) {
	t.Setenv(DefaultPassphraseEnv, testKeystorePassphrase)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path, WithKeystoreScrypt(crypto.LightScrypt))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.Primary.ChainID != 1 || len(cfg.Secondaries) != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	key, err := cfg.OperatorKey()
	if err != nil {
		t.Fatalf("unlock operator key: %v", err)
	}
	stored, err := crypto.LoadFromKeystore(cfg.Node.OperatorKeystorePath, testKeystorePassphrase)
	if err != nil {
		t.Fatalf("failed to decrypt keystore: %v", err)
	}
	if key.PubKey().Address().String() != stored.PubKey().Address().String() {
		t.Fatalf("operator key mismatch")
	}

	// A default written to disk must load back cleanly.
	if _, err := Load(path, WithKeystoreScrypt(crypto.LightScrypt)); err != nil {
		t.Fatalf("reload default config: %v", err)
	}
}
