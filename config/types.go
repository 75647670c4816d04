package config

// Node holds process level settings.
type Node struct {
	DataDir               string `toml:"DataDir" yaml:"dataDir"`
	GenesisFile           string `toml:"GenesisFile" yaml:"genesisFile"`
	Environment           string `toml:"Environment" yaml:"environment"`
	OperatorKeystorePath  string `toml:"OperatorKeystorePath" yaml:"operatorKeystorePath"`
	OperatorPassphraseEnv string `toml:"OperatorPassphraseEnv" yaml:"operatorPassphraseEnv"`
	CommitIntervalSeconds int    `toml:"CommitIntervalSeconds" yaml:"commitIntervalSeconds"`
	AllowMigrate          bool   `toml:"AllowMigrate" yaml:"allowMigrate"`
}

// Log configures the structured logger and its optional rotated file sink.
type Log struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `toml:"Compress" yaml:"compress"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	ServiceName string  `toml:"ServiceName" yaml:"serviceName"`
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// RPC configures the read-only HTTP surface.
type RPC struct {
	Address             string  `toml:"Address" yaml:"address"`
	ReadTimeoutSeconds  int     `toml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeoutSeconds int     `toml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	RateLimit           float64 `toml:"RateLimit" yaml:"rateLimit"`
	Burst               int     `toml:"Burst" yaml:"burst"`
}

// Primary configures the chain holding the entitlement ledger.
type Primary struct {
	ChainID           uint16 `toml:"ChainID" yaml:"chainId"`
	NativeToken       string `toml:"NativeToken" yaml:"nativeToken"`
	NativeName        string `toml:"NativeName" yaml:"nativeName"`
	BasePeriodSeconds uint64 `toml:"BasePeriodSeconds" yaml:"basePeriodSeconds"`
	TreeDepth         int    `toml:"TreeDepth" yaml:"treeDepth"`
	VoucherName       string `toml:"VoucherName" yaml:"voucherName"`
	VoucherVersion    string `toml:"VoucherVersion" yaml:"voucherVersion"`
}

// Secondary configures one mirroring chain.
type Secondary struct {
	ChainID         uint16 `toml:"ChainID" yaml:"chainId"`
	HistoryCapacity int    `toml:"HistoryCapacity" yaml:"historyCapacity"`
}

// RelayQuote prices delivery to one chain as BaseFee + gas*GasPrice, both
// decimal strings in native base units.
type RelayQuote struct {
	ChainID  uint16 `toml:"ChainID" yaml:"chainId"`
	BaseFee  string `toml:"BaseFee" yaml:"baseFee"`
	GasPrice string `toml:"GasPrice" yaml:"gasPrice"`
}

// Relay configures the in-process message relay. SyncIntervalSeconds is how
// often the operator pushes a changed root to every secondary; zero leaves
// syncing to external callers.
type Relay struct {
	Address                string       `toml:"Address" yaml:"address"`
	FeeCollector           string       `toml:"FeeCollector" yaml:"feeCollector"`
	DeliveryIntervalMillis int          `toml:"DeliveryIntervalMillis" yaml:"deliveryIntervalMillis"`
	MaxAttempts            int          `toml:"MaxAttempts" yaml:"maxAttempts"`
	SyncIntervalSeconds    int          `toml:"SyncIntervalSeconds" yaml:"syncIntervalSeconds"`
	Quotes                 []RelayQuote `toml:"Quote" yaml:"quotes"`
}
