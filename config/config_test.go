package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeYaml(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ModeAll, cfg.Mode)
	assert.Equal(t, SourceSimulated, cfg.Feed.Source)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Trade.Notional.Equal(decimal.NewFromInt(1000)))
	assert.True(t, cfg.Trade.SellFraction.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Wallet.InitialBalance.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, cfg.StoreDir)
	assert.False(t, cfg.Setup)
	assert.True(t, cfg.ServesTestnet())
	assert.True(t, cfg.ServesWallets())
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--mode", "synchronized",
		"--symbol", "ETHEREUM",
		"--source", "coingecko",
		"--pollpriceinterval", "30s",
		"--notional", "250.5",
		"--cors", "http://a.test, http://b.test",
		"--coins", "bitcoin,solana",
		"--setup",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeSynchronized, cfg.Mode)
	assert.Equal(t, "ethereum", cfg.Symbol)
	assert.Equal(t, SourceCoinGecko, cfg.Feed.Source)
	assert.Equal(t, 30*time.Second, cfg.Feed.PollInterval)
	assert.True(t, cfg.Trade.Notional.Equal(decimal.RequireFromString("250.5")))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"bitcoin", "solana"}, cfg.Market.Coins)
	assert.True(t, cfg.Setup)
	assert.False(t, cfg.ServesTestnet())
}

func TestParseFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad notional", []string{"--notional", "abc"}},
		{"zero notional", []string{"--notional", "0"}},
		{"fraction above one", []string{"--sellfraction", "1.5"}},
		{"unknown mode", []string{"--mode", "live"}},
		{"unknown source", []string{"--source", "kraken"}},
		{"testnet without url", []string{"--source", "testnet"}},
		{"user with slash", []string{"--user", "a/b"}},
		{"unknown flag", []string{"--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadYaml(t *testing.T) {
	path := writeYaml(t, `
mode: testnet
user_id: alice
symbol: solana
server:
  addr: ":9090"
  tls_domains: ["trade.example.com"]
feed:
  source: testnet
  base_url: http://localhost:8081
  poll_interval: 10s
  points: 48
trade:
  notional: "500"
  sell_fraction: "0.25"
wallet:
  initial_balance: "2500.75"
store:
  dir: ./data/wallets
tradelog:
  dir: ./data/trades
market:
  coins: [bitcoin]
  tick_interval: 2s
log:
  level: debug
  file: ./logs/papertrade.log
`)
	cfg, err := Parse([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, ModeTestnet, cfg.Mode)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "solana", cfg.Symbol)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"trade.example.com"}, cfg.Server.TLSDomains)
	assert.Equal(t, "http://localhost:8081", cfg.Feed.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Feed.PollInterval)
	assert.Equal(t, 48, cfg.Feed.Points)
	assert.True(t, cfg.Trade.SellFraction.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, cfg.Wallet.InitialBalance.Equal(decimal.RequireFromString("2500.75")))
	assert.Equal(t, "./data/wallets", cfg.StoreDir)
	assert.Equal(t, "./data/trades", cfg.TradeLogDir)
	assert.Equal(t, 2*time.Second, cfg.Market.TickInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	// omitted keys keep their defaults
	assert.Equal(t, "default-app-id", cfg.AppID)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadYamlErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYaml(t, "mode: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeYaml(t, "trade:\n  notional: ten\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade.notional")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvUserID, "env-user")
	t.Setenv(EnvAppID, "env-app")
	t.Setenv(EnvStoreDir, "/tmp/wallets")

	cfg, err := Parse([]string{"--user", "flag-user"})
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.UserID)
	assert.Equal(t, "env-app", cfg.AppID)
	assert.Equal(t, "/tmp/wallets", cfg.StoreDir)
}

func TestToTmpRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeSynchronized
	cfg.Feed.Source = SourceBybit
	cfg.Trade.Notional = decimal.RequireFromString("42.5")
	cfg.Live = LiveConfig{Enabled: true, BaseURL: "http://cg.test", RequestsPerSecond: 2}

	data, err := yaml.Marshal(ToTmp(cfg))
	require.NoError(t, err)

	var tmp ConfigTmp
	require.NoError(t, yaml.Unmarshal(data, &tmp))
	back, err := FromTmp(tmp)
	require.NoError(t, err)

	assert.Equal(t, cfg.Mode, back.Mode)
	assert.Equal(t, cfg.Feed, back.Feed)
	assert.Equal(t, cfg.Live, back.Live)
	assert.True(t, cfg.Trade.Notional.Equal(back.Trade.Notional))
	assert.NoError(t, back.Validate())
}

func TestLiveSection(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, cfg.Live.Enabled)

	cfg, err = Parse([]string{"--live", "--liveurl", "http://cg.test", "--liverps", "3"})
	require.NoError(t, err)
	assert.Equal(t, LiveConfig{Enabled: true, BaseURL: "http://cg.test", RequestsPerSecond: 3}, cfg.Live)

	cfg, err = Parse([]string{"--config", writeYaml(t, "live:\n  enabled: true\n")})
	require.NoError(t, err)
	assert.True(t, cfg.Live.Enabled)
	assert.Equal(t, float64(1), cfg.Live.RequestsPerSecond)

	_, err = Parse([]string{"--live", "--liverps", "0"})
	assert.Error(t, err)
}

func TestHyperliquidSource(t *testing.T) {
	cfg, err := Parse([]string{"--source", "hyperliquid"})
	require.NoError(t, err)
	assert.Equal(t, SourceHyperliquid, cfg.Feed.Source)
}
