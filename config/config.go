package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	JWT        JWTConfig              `mapstructure:"jwt"`
	Vault      VaultConfig            `mapstructure:"vault"`
	Log        LogConfig              `mapstructure:"log"`
	Fees       FeeConfig              `mapstructure:"fees"`
	Withdrawal WithdrawalConfig       `mapstructure:"withdrawal"`
	Monitor    MonitorConfig          `mapstructure:"monitor"`
	Resilience ResilienceConfig       `mapstructure:"resilience"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	Prices     map[string]string      `mapstructure:"prices"`
	Payout     PayoutConfig           `mapstructure:"payout"`
	Workers    WorkerConfig           `mapstructure:"workers"`
	Webhook    WebhookConfig          `mapstructure:"webhook"`
	Admin      AdminConfig            `mapstructure:"admin"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type VaultConfig struct {
	Key string `mapstructure:"key"` // 64 hex chars (32 bytes) for AES-256-GCM
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// FeeConfig holds platform defaults applied when a merchant has no override.
type FeeConfig struct {
	DefaultPercentage decimal.Decimal `mapstructure:"default_percentage"`
	CustomerPays      bool            `mapstructure:"customer_pays"`
}

type WithdrawalConfig struct {
	MinAmount               decimal.Decimal `mapstructure:"min_amount"`
	AutoApproveThresholdUSD decimal.Decimal `mapstructure:"auto_approve_threshold_usd"`
	FeePercentage           decimal.Decimal `mapstructure:"fee_percentage"`
}

type MonitorConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	PaymentExpiry time.Duration `mapstructure:"payment_expiry"`
}

type ResilienceConfig struct {
	RPCTimeout       time.Duration `mapstructure:"rpc_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// ChainConfig configures one network. Confirmations of 0 keeps the built-in default.
type ChainConfig struct {
	RPCURL        string  `mapstructure:"rpc_url"`
	ChainID       int64   `mapstructure:"chain_id"`
	Confirmations int     `mapstructure:"confirmations"`
	RateLimit     float64 `mapstructure:"rate_limit"` // requests per second
	Burst         int     `mapstructure:"burst"`
	USDTContract  string  `mapstructure:"usdt_contract"`
	ScanDepth     uint64  `mapstructure:"scan_depth"` // first back-search step for the funding block
}

// PayoutConfig holds the hot-wallet keys used for withdrawals, encrypted with the vault key.
type PayoutConfig struct {
	EVMAddress      string `mapstructure:"evm_address"`
	EVMKeyEnc       string `mapstructure:"evm_key_enc"`
	SolanaAddress   string `mapstructure:"solana_address"`
	SolanaKeyEnc    string `mapstructure:"solana_key_enc"`
	SubmitBatchSize int    `mapstructure:"submit_batch_size"`
}

type WorkerConfig struct {
	WithdrawalSchedule string `mapstructure:"withdrawal_schedule"`
	ReconcileSchedule  string `mapstructure:"reconcile_schedule"`
}

// AdminConfig bootstraps the operator account at startup when both fields are set.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Chain returns the configuration for a network name (case-insensitive).
func (c *Config) Chain(network string) (ChainConfig, bool) {
	cc, ok := c.Chains[strings.ToLower(network)]
	return cc, ok
}

// Price returns the configured USD price for a symbol (case-insensitive).
func (c *Config) Price(symbol string) (decimal.Decimal, error) {
	raw, ok := c.Prices[strings.ToLower(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price configured for %s", symbol)
	}
	return decimal.NewFromString(raw)
}

// Validate checks invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	if !c.Withdrawal.MinAmount.IsPositive() {
		return fmt.Errorf("withdrawal.min_amount must be positive")
	}
	if c.Withdrawal.AutoApproveThresholdUSD.IsNegative() {
		return fmt.Errorf("withdrawal.auto_approve_threshold_usd must not be negative")
	}
	if c.Resilience.RetryAttempts < 1 {
		return fmt.Errorf("resilience.retry_attempts must be at least 1")
	}
	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("resilience.failure_threshold must be at least 1")
	}
	if c.Monitor.Workers < 1 {
		return fmt.Errorf("monitor.workers must be at least 1")
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CPS_ (Crypto Payment Settlement).
// Nested keys use underscore: CPS_DATABASE_HOST, CPS_CHAINS_ETHEREUM_RPC_URL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch d := data.(type) {
	case string:
		return decimal.NewFromString(d)
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	case float64:
		return decimal.NewFromFloat(d), nil
	}
	return data, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "crypto_settlement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "crypto-settlement")

	v.SetDefault("vault.key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("fees.default_percentage", "0.75")
	v.SetDefault("fees.customer_pays", false)

	v.SetDefault("withdrawal.min_amount", "10")
	v.SetDefault("withdrawal.auto_approve_threshold_usd", "1000")
	v.SetDefault("withdrawal.fee_percentage", "0.5")

	v.SetDefault("monitor.poll_interval", "15s")
	v.SetDefault("monitor.workers", 16)
	v.SetDefault("monitor.batch_size", 500)
	v.SetDefault("monitor.lease_ttl", "60s")
	v.SetDefault("monitor.payment_expiry", "15m")

	v.SetDefault("resilience.rpc_timeout", "10s")
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_base_delay", "1s")
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown", "30s")

	chains := map[string]ChainConfig{
		"solana":   {RPCURL: "https://api.mainnet-beta.solana.com", RateLimit: 10, Burst: 5, USDTContract: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"},
		"ethereum": {RPCURL: "https://eth.llamarpc.com", ChainID: 1, RateLimit: 10, Burst: 5, USDTContract: "0xdAC17F958D2ee523a2206206994597C13D831ec7", ScanDepth: 64},
		"bsc":      {RPCURL: "https://bsc-dataseed.binance.org", ChainID: 56, RateLimit: 10, Burst: 5, USDTContract: "0x55d398326f99059fF775485246999027B3197955", ScanDepth: 200},
		"polygon":  {RPCURL: "https://polygon-rpc.com", ChainID: 137, RateLimit: 10, Burst: 5, USDTContract: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", ScanDepth: 200},
		"arbitrum": {RPCURL: "https://arb1.arbitrum.io/rpc", ChainID: 42161, RateLimit: 10, Burst: 5, USDTContract: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", ScanDepth: 400},
	}
	for name, cc := range chains {
		prefix := "chains." + name + "."
		v.SetDefault(prefix+"rpc_url", cc.RPCURL)
		v.SetDefault(prefix+"chain_id", cc.ChainID)
		v.SetDefault(prefix+"confirmations", 0)
		v.SetDefault(prefix+"rate_limit", cc.RateLimit)
		v.SetDefault(prefix+"burst", cc.Burst)
		v.SetDefault(prefix+"usdt_contract", cc.USDTContract)
		v.SetDefault(prefix+"scan_depth", cc.ScanDepth)
	}

	v.SetDefault("prices.sol", "150")
	v.SetDefault("prices.eth", "3000")
	v.SetDefault("prices.bnb", "600")
	v.SetDefault("prices.matic", "0.5")
	v.SetDefault("prices.arb", "0.8")
	v.SetDefault("prices.usdt", "1")

	v.SetDefault("payout.evm_address", "")
	v.SetDefault("payout.evm_key_enc", "")
	v.SetDefault("payout.solana_address", "")
	v.SetDefault("payout.solana_key_enc", "")
	v.SetDefault("payout.submit_batch_size", 50)

	v.SetDefault("workers.withdrawal_schedule", "@every 1m")
	v.SetDefault("workers.reconcile_schedule", "0 3 * * *")

	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
}
