package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"subsync/crypto"
	"subsync/storage/smt"
)

const (
	DefaultRPCAddress            = ":8080"
	DefaultDataDir               = "./subsync-data"
	DefaultPassphraseEnv         = "SUBSYNC_OPERATOR_PASSPHRASE"
	DefaultCommitIntervalSeconds = 5
	DefaultHistoryCapacity       = 256
	DefaultTreeDepth             = smt.DefaultDepth
	DefaultDeliveryIntervalMs    = 2000
	DefaultSyncIntervalSeconds   = 30
	DefaultRPCRateLimit          = 50
	DefaultRPCBurst              = 100
)

type Config struct {
	Node        Node        `toml:"node" yaml:"node"`
	Log         Log         `toml:"log" yaml:"log"`
	Telemetry   Telemetry   `toml:"telemetry" yaml:"telemetry"`
	RPC         RPC         `toml:"rpc" yaml:"rpc"`
	Primary     Primary     `toml:"primary" yaml:"primary"`
	Secondaries []Secondary `toml:"secondary" yaml:"secondaries"`
	Relay       Relay       `toml:"relay" yaml:"relay"`
}

type loadOptions struct {
	passphrase    string
	hasPassphrase bool
	scrypt        crypto.ScryptParams
}

// Option tweaks Load.
type Option func(*loadOptions)

// WithKeystoreScrypt sets the cost of a newly created operator keystore.
// Without it crypto.StandardScrypt is used.
func WithKeystoreScrypt(params crypto.ScryptParams) Option {
	return func(o *loadOptions) {
		o.scrypt = params
	}
}

// WithKeystorePassphrase overrides the passphrase otherwise read from the
// environment variable named by Node.OperatorPassphraseEnv.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) {
		o.passphrase = passphrase
		o.hasPassphrase = true
	}
}

// Default returns a single-host layout: one primary chain, one secondary
// chain and a relay between them.
func Default() *Config {
	return &Config{
		Node: Node{
			DataDir:               DefaultDataDir,
			Environment:           "local",
			OperatorPassphraseEnv: DefaultPassphraseEnv,
			CommitIntervalSeconds: DefaultCommitIntervalSeconds,
		},
		Log: Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Telemetry: Telemetry{
			ServiceName: "subsyncd",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
		RPC: RPC{
			Address:             DefaultRPCAddress,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
			RateLimit:           DefaultRPCRateLimit,
			Burst:               DefaultRPCBurst,
		},
		Primary: Primary{
			ChainID:           1,
			NativeToken:       "SUB",
			NativeName:        "Subsync",
			BasePeriodSeconds: 30 * 24 * 60 * 60,
			TreeDepth:         DefaultTreeDepth,
		},
		Secondaries: []Secondary{{ChainID: 2, HistoryCapacity: DefaultHistoryCapacity}},
		Relay: Relay{
			Address:                "0x00000000000000000000000000000000000000e1",
			FeeCollector:           "0x00000000000000000000000000000000000000fc",
			DeliveryIntervalMillis: DefaultDeliveryIntervalMs,
			MaxAttempts:            3,
			SyncIntervalSeconds:    DefaultSyncIntervalSeconds,
			Quotes:                 []RelayQuote{{ChainID: 2, BaseFee: "0", GasPrice: "0"}},
		},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is created with
// the defaults. The operator keystore is generated on first use.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := Default()
	if err := decode(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decode(path string, cfg *Config) error {
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		// Lists replace the defaults instead of merging into them.
		cfg.Secondaries = nil
		cfg.Relay.Quotes = nil
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
		return nil
	}
	cfg.Secondaries = nil
	cfg.Relay.Quotes = nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.Node.DataDir) == "" {
		c.Node.DataDir = def.Node.DataDir
	}
	if strings.TrimSpace(c.Node.OperatorPassphraseEnv) == "" {
		c.Node.OperatorPassphraseEnv = def.Node.OperatorPassphraseEnv
	}
	if c.Node.CommitIntervalSeconds <= 0 {
		c.Node.CommitIntervalSeconds = def.Node.CommitIntervalSeconds
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		c.RPC.Address = def.RPC.Address
	}
	if c.RPC.RateLimit <= 0 {
		c.RPC.RateLimit = def.RPC.RateLimit
	}
	if c.RPC.Burst <= 0 {
		c.RPC.Burst = def.RPC.Burst
	}
	if strings.TrimSpace(c.Primary.NativeToken) == "" {
		c.Primary.NativeToken = def.Primary.NativeToken
	}
	c.Primary.NativeToken = strings.ToUpper(strings.TrimSpace(c.Primary.NativeToken))
	if c.Primary.BasePeriodSeconds == 0 {
		c.Primary.BasePeriodSeconds = def.Primary.BasePeriodSeconds
	}
	if c.Primary.TreeDepth == 0 {
		c.Primary.TreeDepth = def.Primary.TreeDepth
	}
	if c.Relay.DeliveryIntervalMillis <= 0 {
		c.Relay.DeliveryIntervalMillis = def.Relay.DeliveryIntervalMillis
	}
	if c.Relay.MaxAttempts <= 0 {
		c.Relay.MaxAttempts = def.Relay.MaxAttempts
	}
}

func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.Node.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	passphrase, err := cfg.requirePassphrase(options)
	if err != nil {
		return err
	}
	if _, _, err := crypto.LoadOrCreateKeystore(keystorePath, passphrase, options.scrypt); err != nil {
		return fmt.Errorf("operator keystore %s: %w", keystorePath, err)
	}
	if cfg.Node.OperatorKeystorePath != keystorePath {
		cfg.Node.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// Passphrase resolves the operator keystore passphrase.
func (c *Config) Passphrase(opts ...Option) string {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return c.passphrase(options)
}

func (c *Config) passphrase(options loadOptions) string {
	if options.hasPassphrase {
		return options.passphrase
	}
	if env := strings.TrimSpace(c.Node.OperatorPassphraseEnv); env != "" {
		return os.Getenv(env)
	}
	return ""
}

func (c *Config) requirePassphrase(options loadOptions) (string, error) {
	passphrase := c.passphrase(options)
	if passphrase == "" {
		return "", fmt.Errorf("operator keystore passphrase required: set %s", c.Node.OperatorPassphraseEnv)
	}
	return passphrase, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	cfg := Default()
	passphrase, err := cfg.requirePassphrase(options)
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystoreWithScrypt(keystorePath, key, passphrase, options.scrypt); err != nil {
		return nil, err
	}
	cfg.Node.OperatorKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}

// OperatorKey unlocks the operator keystore. The operator owns every native
// module on the chains this node runs.
func (c *Config) OperatorKey(opts ...Option) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(c.Node.OperatorKeystorePath) == "" {
		return nil, fmt.Errorf("operator keystore path not configured")
	}
	return crypto.LoadFromKeystore(c.Node.OperatorKeystorePath, c.Passphrase(opts...))
}
