package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Solana.PrivateKey = "secret"
	cfg.Chat.RelayURL = "http://relay.local"
	cfg.Chat.WSURL = "ws://relay.local/ws"
	cfg.Chat.Channels = []string{"alpha"}
	return cfg
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trader.yaml")
	yamlDoc := `
chat:
  relay_url: http://relay.local
  ws_url: ws://relay.local/ws
  channels: [alpha, beta]
trading:
  amount_per_trade: "0.25"
  slippage_bps: 150
  once_per_token: false
verify:
  quiet_period: 21s
sampler:
  interval: 5s
  retention: 400
storage:
  use_memory: false
  postgres_dsn: postgres://u:p@localhost/trader
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, cfg.Chat.Channels)
	assert.Equal(t, "0.25", cfg.Trading.AmountPerTrade)
	assert.Equal(t, 150, cfg.Trading.SlippageBps)
	assert.False(t, cfg.Trading.OncePerToken)
	assert.Equal(t, 21*time.Second, cfg.Verify.QuietPeriod)
	assert.Equal(t, 5*time.Second, cfg.Sampler.Interval)
	assert.Equal(t, 400, cfg.Sampler.Retention)
	assert.False(t, cfg.Storage.UseMemory)

	// Untouched keys keep their defaults.
	assert.Equal(t, "prefer", cfg.Trading.LinkPolicy)
	assert.Equal(t, 2, cfg.Verify.RecentCount)
}

func TestLoad_PrivateKeyIgnoredInYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solana:\n  private_key: leaked\n"), 0o600))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	if cfg.Solana.PrivateKey == "leaked" {
		t.Error("private key must come from the environment only")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CHAT_CHANNELS=gamma, delta\n"), 0o600))
	t.Setenv("CHAT_CHANNELS", "")
	os.Unsetenv("CHAT_CHANNELS")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "delta"}, cfg.Chat.Channels)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"SOLANA_PRIVATE_KEY":   "key",
		"CHAT_CHANNELS":        " a ,b,, c ",
		"TRADING_SLIPPAGE_BPS": "75",
		"STORAGE_USE_MEMORY":   "false",
		"REDIS_URL":            "redis://localhost:6379/0",
		"HTTP_ADDR":            ":9090",
	}))
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.Solana.PrivateKey)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Chat.Channels)
	assert.Equal(t, 75, cfg.Trading.SlippageBps)
	assert.False(t, cfg.Storage.UseMemory)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{"TRADING_SLIPPAGE_BPS": "lots"}))
	assert.ErrorIs(t, err, ErrInvalidValue)

	err = cfg.applyEnv(envMap(map[string]string{"STORAGE_USE_MEMORY": "maybe"}))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestAmountPerTradeRaw(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     uint64
		wantErr  bool
	}{
		{"0.05", 9, 50_000_000, false},
		{"1", 6, 1_000_000, false},
		{"0.0000000001", 9, 0, true},
		{"-1", 9, 0, true},
		{"abc", 9, 0, true},
		{"100000000000", 9, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			cfg := Default()
			cfg.Trading.AmountPerTrade = tt.amount
			cfg.Trading.FundingDecimals = tt.decimals
			got, err := cfg.AmountPerTradeRaw()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Errorf("expected ErrInvalidValue, got %v", err)
				}
				return
			}
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing key", func(c *Config) { c.Solana.PrivateKey = "" }, ErrMissingCredentials},
		{"no channels", func(c *Config) { c.Chat.Channels = nil }, ErrMissingChannels},
		{"no relay", func(c *Config) { c.Chat.RelayURL = "" }, ErrMissingEndpoint},
		{"no rpc", func(c *Config) { c.Solana.RPCEndpoint = "" }, ErrMissingEndpoint},
		{"postgres without dsn", func(c *Config) { c.Storage.UseMemory = false }, ErrMissingEndpoint},
		{"slippage range", func(c *Config) { c.Trading.SlippageBps = 10_001 }, ErrInvalidValue},
		{"link policy", func(c *Config) { c.Trading.LinkPolicy = "ignore" }, ErrInvalidValue},
		{"quiet period short", func(c *Config) { c.Verify.QuietPeriod = 5 * time.Second }, ErrInvalidValue},
		{"quiet period long", func(c *Config) { c.Verify.QuietPeriod = time.Minute }, ErrInvalidValue},
		{"short retention", func(c *Config) { c.Sampler.Retention = 10 }, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.ErrorIs(t, err, ErrMissingChannels)
}
