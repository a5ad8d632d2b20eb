// Command trader watches chat channels for token addresses, buys verified
// candidates and sells them on the exit rules.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"solana-signal-trader/internal/config"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Chat-signal driven single-position token trader",
	Long: `trader subscribes to tracked chat channels, verifies token addresses
after a quiet period, holds at most one position and exits on price rules.

Examples:
  trader run --config trader.yaml
  trader reconcile --config trader.yaml
  trader extract "new gem 2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump"`,
	SilenceUsage: true,
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&configPath, "config", "", "Path to YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to .env file (missing file is ignored)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&logFormat, "log-format", "", "Log format: json, console (overrides config)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and optionally validates the config, applying log flags.
func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

// setup loads the validated config and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
