package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the server and the DEX client
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Chain     ChainConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// StorageConfig holds deploy history storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// ChainConfig describes the network and the DEX contracts. Values are kept as
// strings here; dex.NewConfig parses them once.
type ChainConfig struct {
	NodeAddress         string        `toml:"node_address"`
	ChainName           string        `toml:"chain_name"`
	RouterPackageHash   string        `toml:"router_package_hash"`
	RouterContractHash  string        `toml:"router_contract_hash"`
	FactoryContractHash string        `toml:"factory_contract_hash"`
	Tokens              []TokenConfig `toml:"tokens"`

	DeployTTLMinutes    int    `toml:"deploy_ttl_minutes"`
	GasPrice            uint64 `toml:"gas_price"`
	BalanceProbeDelayMS int    `toml:"balance_probe_delay_ms"`
	BalanceSlotIndex    uint32 `toml:"balance_slot_index"`
	BalanceSweepMax     uint32 `toml:"balance_sweep_max"`
	PollAttempts        int    `toml:"poll_attempts"`
	PollIntervalMS      int    `toml:"poll_interval_ms"`
	MinNodeAPIVersion   string `toml:"min_node_api_version"`
}

// TokenConfig is one known CEP-18 token.
type TokenConfig struct {
	Symbol       string `toml:"symbol"`
	PackageHash  string `toml:"package_hash"`
	ContractHash string `toml:"contract_hash"`
	Decimals     int    `toml:"decimals"`
}

// Token returns the token with the given symbol (case-insensitive).
func (c ChainConfig) Token(symbol string) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled            bool
	RequestsPerMin     int
	BurstSize          int
	NodeRequestsPerMin int
	NodeBurstSize      int
	CleanupMinutes     int
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

// Built-in chain defaults, matching a local NCTL network.
const (
	DefaultNodeAddress = "http://127.0.0.1:11101"
	DefaultChainName   = "casper-net-1"
)

// default token metadata; hashes come from the environment or the config file
var defaultTokens = []TokenConfig{
	{Symbol: "WCSPR", Decimals: 9},
	{Symbol: "ECTO", Decimals: 18},
}

// Load loads configuration from defaults, then the optional TOML file named by
// DEX_CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	chain, err := LoadChain(os.Getenv("DEX_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 360),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/ectoplasm.db"),
			},
		},
		Chain: chain,
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:     getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:          getEnvInt("RATE_LIMIT_BURST", 50),
			NodeRequestsPerMin: getEnvInt("RATE_LIMIT_NODE_RPM", 60),
			NodeBurstSize:      getEnvInt("RATE_LIMIT_NODE_BURST", 10),
			CleanupMinutes:     getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 1),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", true),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "ectoplasm-server"),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// LoadChain builds the chain section from defaults, then the [chain] table of
// the TOML file at path (skipped when path is empty), then the environment.
func LoadChain(path string) (ChainConfig, error) {
	chain := DefaultChain()
	if path != "" {
		if err := LoadChainFile(path, &chain); err != nil {
			return ChainConfig{}, err
		}
	}
	applyChainEnv(&chain)
	return chain, nil
}

// DefaultChain returns the chain section with built-in defaults and no
// contract hashes.
func DefaultChain() ChainConfig {
	tokens := make([]TokenConfig, len(defaultTokens))
	copy(tokens, defaultTokens)
	return ChainConfig{
		NodeAddress:         DefaultNodeAddress,
		ChainName:           DefaultChainName,
		Tokens:              tokens,
		DeployTTLMinutes:    30,
		GasPrice:            1,
		BalanceProbeDelayMS: 100,
		BalanceSlotIndex:    5,
		BalanceSweepMax:     10,
		PollAttempts:        60,
		PollIntervalMS:      5000,
	}
}

// chainFile is the TOML layout: a [chain] table with [[chain.tokens]] entries.
type chainFile struct {
	Chain ChainConfig `toml:"chain"`
}

// LoadChainFile overlays the [chain] table of a TOML file onto chain. Tokens
// in the file are merged by symbol.
func LoadChainFile(path string, chain *ChainConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return DecodeChain(data, chain)
}

// DecodeChain overlays TOML data onto chain.
func DecodeChain(data []byte, chain *ChainConfig) error {
	overlay := chainFile{Chain: *chain}
	overlay.Chain.Tokens = nil
	if _, err := toml.Decode(string(data), &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	base := overlay.Chain
	fileTokens := base.Tokens
	base.Tokens = append([]TokenConfig(nil), chain.Tokens...)
	for _, t := range fileTokens {
		base.Tokens = mergeToken(base.Tokens, t)
	}
	*chain = base
	return nil
}

func mergeToken(tokens []TokenConfig, t TokenConfig) []TokenConfig {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	for i, existing := range tokens {
		if strings.EqualFold(existing.Symbol, t.Symbol) {
			if t.PackageHash != "" {
				existing.PackageHash = t.PackageHash
			}
			if t.ContractHash != "" {
				existing.ContractHash = t.ContractHash
			}
			if t.Decimals != 0 {
				existing.Decimals = t.Decimals
			}
			tokens[i] = existing
			return tokens
		}
	}
	return append(tokens, t)
}

func applyChainEnv(c *ChainConfig) {
	c.NodeAddress = getChainEnv("NODE_ADDRESS", c.NodeAddress)
	c.ChainName = getChainEnv("CHAIN_NAME", c.ChainName)
	c.RouterPackageHash = getChainEnv("ROUTER_PACKAGE_HASH", c.RouterPackageHash)
	c.RouterContractHash = getChainEnv("ROUTER_CONTRACT_HASH", c.RouterContractHash)
	c.FactoryContractHash = getChainEnv("FACTORY_CONTRACT_HASH", c.FactoryContractHash)

	for i, t := range c.Tokens {
		sym := strings.ToUpper(t.Symbol)
		t.PackageHash = getChainEnv(sym+"_PACKAGE_HASH", t.PackageHash)
		t.ContractHash = getChainEnv(sym+"_CONTRACT_HASH", t.ContractHash)
		t.Decimals = getEnvInt(sym+"_DECIMALS", t.Decimals)
		c.Tokens[i] = t
	}

	c.DeployTTLMinutes = getEnvInt("DEPLOY_TTL_MINUTES", c.DeployTTLMinutes)
	c.GasPrice = uint64(getEnvInt("DEPLOY_GAS_PRICE", int(c.GasPrice)))
	c.BalanceProbeDelayMS = getEnvInt("BALANCE_PROBE_DELAY_MS", c.BalanceProbeDelayMS)
	c.BalanceSlotIndex = uint32(getEnvInt("BALANCE_SLOT_INDEX", int(c.BalanceSlotIndex)))
	c.BalanceSweepMax = uint32(getEnvInt("BALANCE_SWEEP_MAX", int(c.BalanceSweepMax)))
	c.PollAttempts = getEnvInt("DEPLOY_POLL_ATTEMPTS", c.PollAttempts)
	c.PollIntervalMS = getEnvInt("DEPLOY_POLL_INTERVAL_MS", c.PollIntervalMS)
	c.MinNodeAPIVersion = getEnv("NODE_MIN_API_VERSION", c.MinNodeAPIVersion)
}

// Validate reports missing contract hashes needed to build router deploys.
func (c ChainConfig) Validate() error {
	var errs []error
	if c.NodeAddress == "" {
		errs = append(errs, errors.New("node address is required"))
	}
	if c.ChainName == "" {
		errs = append(errs, errors.New("chain name is required"))
	}
	if c.RouterPackageHash == "" {
		errs = append(errs, errors.New("ROUTER_PACKAGE_HASH is required"))
	}
	if c.DeployTTLMinutes <= 0 {
		errs = append(errs, errors.New("deploy TTL must be positive"))
	}
	return errors.Join(errs...)
}

// getChainEnv reads key, falling back to the VITE_-prefixed name used by the
// web frontend's env file.
func getChainEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return getEnv("VITE_"+key, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
