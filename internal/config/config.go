// Package config loads the trader configuration from a YAML file, a .env file
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingChannels    = errors.New("no tracked channels configured")
	ErrMissingEndpoint    = errors.New("missing endpoint")
	ErrInvalidValue       = errors.New("invalid config value")
)

// Config is the full trader configuration.
type Config struct {
	Solana    SolanaConfig    `yaml:"solana"`
	Swap      SwapConfig      `yaml:"swap"`
	Chat      ChatConfig      `yaml:"chat"`
	Trading   TradingConfig   `yaml:"trading"`
	Verify    VerifyConfig    `yaml:"verify"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// SolanaConfig holds ledger RPC settings. The private key is read from the
// environment only.
type SolanaConfig struct {
	RPCEndpoint  string        `yaml:"rpc_endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	Commitment   string        `yaml:"commitment"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PrivateKey   string        `yaml:"-"`
}

// SwapConfig holds swap service settings.
type SwapConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
	PriorityFee       string        `yaml:"priority_fee"` // "auto" or lamports
}

// ChatConfig holds chat relay settings.
type ChatConfig struct {
	RelayURL string   `yaml:"relay_url"`
	WSURL    string   `yaml:"ws_url"`
	APIKey   string   `yaml:"api_key"`
	Channels []string `yaml:"channels"`
}

// TradingConfig holds the immutable inputs of every open attempt.
type TradingConfig struct {
	FundingMint     string   `yaml:"funding_mint"`
	FundingDecimals int      `yaml:"funding_decimals"`
	AmountPerTrade  string   `yaml:"amount_per_trade"` // whole funding units, e.g. "0.05"
	SlippageBps     int      `yaml:"slippage_bps"`
	Denylist        []string `yaml:"denylist"`
	OncePerToken    bool     `yaml:"once_per_token"`
	LinkPolicy      string   `yaml:"link_policy"` // "prefer" or "reject"
	BlockedHosts    []string `yaml:"blocked_hosts"`
	SuffixMarker    string   `yaml:"suffix_marker"`
	RequireOnCurve  bool     `yaml:"require_on_curve"`
}

// VerifyConfig holds verification gate settings.
type VerifyConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period"`
	RecentCount int           `yaml:"recent_count"`
}

// SamplerConfig holds price sampler settings.
type SamplerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Retention       int           `yaml:"retention"`
	ReferenceTokens uint64        `yaml:"reference_tokens"`
}

// ExecutionConfig holds execution protocol settings.
type ExecutionConfig struct {
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	RecoveryGrace  time.Duration `yaml:"recovery_grace"`
}

// StorageConfig selects the storage backends.
type StorageConfig struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional sample sink
	RedisURL      string `yaml:"redis_url"`      // optional shared traded set
	RedisPrefix   string `yaml:"redis_prefix"`
}

// HTTPConfig holds the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the configuration used when a key is not set.
func Default() *Config {
	return &Config{
		Solana: SolanaConfig{
			RPCEndpoint:  "https://api.mainnet-beta.solana.com",
			Commitment:   "confirmed",
			PollInterval: 2 * time.Second,
		},
		Swap: SwapConfig{
			BaseURL:           "https://lite-api.jup.ag/swap/v1",
			RequestsPerSecond: 1,
			Burst:             2,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
			PriorityFee:       "auto",
		},
		Trading: TradingConfig{
			FundingMint:     "So11111111111111111111111111111111111111112",
			FundingDecimals: 9,
			AmountPerTrade:  "0.01",
			SlippageBps:     300,
			OncePerToken:    true,
			LinkPolicy:      "prefer",
			SuffixMarker:    "pump",
		},
		Verify: VerifyConfig{
			QuietPeriod: 25 * time.Second,
			RecentCount: 2,
		},
		Sampler: SamplerConfig{
			Interval:        10 * time.Second,
			Retention:       180,
			ReferenceTokens: 1,
		},
		Execution: ExecutionConfig{
			ConfirmTimeout: 60 * time.Second,
			RecoveryGrace:  10 * time.Second,
		},
		Storage: StorageConfig{
			UseMemory:   true,
			RedisPrefix: "signal-trader",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional), the .env file at envFile (missing file
// tolerated) and the environment, on top of Default().
func Load(path, envFile string) (*Config, error) {
	if err := LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads envFile into the process environment without overriding
// variables that are already set. An empty name means ".env".
func LoadDotEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("SOLANA_RPC_ENDPOINT", &c.Solana.RPCEndpoint)
	str("SOLANA_WS_ENDPOINT", &c.Solana.WSEndpoint)
	str("SOLANA_PRIVATE_KEY", &c.Solana.PrivateKey)
	str("SWAP_BASE_URL", &c.Swap.BaseURL)
	str("SWAP_API_KEY", &c.Swap.APIKey)
	str("CHAT_RELAY_URL", &c.Chat.RelayURL)
	str("CHAT_WS_URL", &c.Chat.WSURL)
	str("CHAT_API_KEY", &c.Chat.APIKey)
	list("CHAT_CHANNELS", &c.Chat.Channels)
	str("TRADING_AMOUNT_PER_TRADE", &c.Trading.AmountPerTrade)
	list("TRADING_DENYLIST", &c.Trading.Denylist)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	str("REDIS_URL", &c.Storage.RedisURL)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("TRADING_SLIPPAGE_BPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TRADING_SLIPPAGE_BPS=%q", ErrInvalidValue, v)
		}
		c.Trading.SlippageBps = n
	}
	if v, ok := lookup("STORAGE_USE_MEMORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: STORAGE_USE_MEMORY=%q", ErrInvalidValue, v)
		}
		c.Storage.UseMemory = b
	}
	return nil
}

// AmountPerTradeRaw converts AmountPerTrade to raw funding units.
func (c *Config) AmountPerTradeRaw() (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Trading.AmountPerTrade))
	if err != nil {
		return 0, fmt.Errorf("%w: amount_per_trade %q", ErrInvalidValue, c.Trading.AmountPerTrade)
	}
	raw := d.Shift(int32(c.Trading.FundingDecimals)).Truncate(0)
	if !raw.IsPositive() || raw.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("%w: amount_per_trade %q out of range", ErrInvalidValue, c.Trading.AmountPerTrade)
	}
	return raw.BigInt().Uint64(), nil
}

// Validate reports every configuration problem that prevents startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Solana.PrivateKey == "" {
		errs = append(errs, fmt.Errorf("%w: SOLANA_PRIVATE_KEY", ErrMissingCredentials))
	}
	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, fmt.Errorf("%w: solana.rpc_endpoint", ErrMissingEndpoint))
	}
	if c.Swap.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: swap.base_url", ErrMissingEndpoint))
	}
	if len(c.Chat.Channels) == 0 {
		errs = append(errs, ErrMissingChannels)
	}
	if c.Chat.RelayURL == "" || c.Chat.WSURL == "" {
		errs = append(errs, fmt.Errorf("%w: chat.relay_url and chat.ws_url", ErrMissingEndpoint))
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("%w: storage.postgres_dsn", ErrMissingEndpoint))
	}

	if _, err := c.AmountPerTradeRaw(); err != nil {
		errs = append(errs, err)
	}
	if c.Trading.SlippageBps < 0 || c.Trading.SlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("%w: slippage_bps %d", ErrInvalidValue, c.Trading.SlippageBps))
	}
	if c.Trading.LinkPolicy != "prefer" && c.Trading.LinkPolicy != "reject" {
		errs = append(errs, fmt.Errorf("%w: link_policy %q", ErrInvalidValue, c.Trading.LinkPolicy))
	}
	if c.Verify.QuietPeriod < 20*time.Second || c.Verify.QuietPeriod > 30*time.Second {
		errs = append(errs, fmt.Errorf("%w: quiet_period %s not in [20s, 30s]", ErrInvalidValue, c.Verify.QuietPeriod))
	}
	if c.Verify.RecentCount <= 0 {
		errs = append(errs, fmt.Errorf("%w: recent_count %d", ErrInvalidValue, c.Verify.RecentCount))
	}
	if c.Sampler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: sampler.interval %s", ErrInvalidValue, c.Sampler.Interval))
	}
	// The exit rules look back 20 minutes.
	if c.Sampler.Interval > 0 && time.Duration(c.Sampler.Retention)*c.Sampler.Interval < 20*time.Minute {
		errs = append(errs, fmt.Errorf("%w: sampler.retention %d covers less than 20m", ErrInvalidValue, c.Sampler.Retention))
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
