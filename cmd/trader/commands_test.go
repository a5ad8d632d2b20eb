package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{
		"extract",
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"new gem 2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump",
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump", strings.TrimSpace(out.String()))
}

func TestExtractCommand_NoAddress(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"extract", "--env-file", filepath.Join(t.TempDir(), "none.env"), "gm"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}

func TestReportCommand_MemoryStorage(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STORAGE_USE_MEMORY", "true")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"report", "--env-file", filepath.Join(dir, "none.env"), "--output-dir", dir})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "0 trades")
	assert.FileExists(t, filepath.Join(dir, "TRADE_REPORT.md"))
	assert.FileExists(t, filepath.Join(dir, "trades.csv"))
}

func TestGlobalFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addGlobalFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", "trader.yaml", "--log-level", "debug", "--log-format", "console"}))
	t.Cleanup(func() { configPath, logLevel, logFormat, envFile = "", "", "", ".env" })

	assert.Equal(t, "trader.yaml", configPath)
	assert.Equal(t, "debug", logLevel)
	assert.Equal(t, "console", logFormat)
	assert.Equal(t, ".env", envFile)
}
