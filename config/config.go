package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Mode selects which trading surfaces the process serves.
type Mode string

const (
	ModeTestnet      Mode = "testnet"
	ModeSynchronized Mode = "synchronized"
	ModeAll          Mode = "all"
)

// Feed sources.
const (
	SourceSimulated = "simulated"
	SourceTestnet   = "testnet"
	SourceCoinGecko = "coingecko"
	SourceBinance   = "binance"
	SourceBybit     = "bybit"
	// SourceHyperliquid reads the public info api, no wallet key involved.
	SourceHyperliquid = "hyperliquid"
)

// Environment overrides, applied after the yaml file or flags.
const (
	EnvUserID   = "PAPERTRADE_USER_ID"
	EnvAppID    = "PAPERTRADE_APP_ID"
	EnvStoreDir = "PAPERTRADE_STORE_DIR"
)

type Config struct {
	Mode   Mode
	AppID  string
	UserID string
	Symbol string

	Server   ServerConfig
	Feed     FeedConfig
	Trade    TradeConfig
	Wallet   WalletConfig
	StoreDir string
	// TradeLogDir empty keeps the testnet trade log in memory.
	TradeLogDir string
	Market      MarketConfig
	Live        LiveConfig
	Log         LogConfig

	// Setup asks for the configuration wizard before starting.
	Setup bool
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	TLSDomains  []string
	CertCache   string
}

type FeedConfig struct {
	Source            string
	BaseURL           string
	PollInterval      time.Duration
	Points            int
	RequestsPerSecond float64
}

type TradeConfig struct {
	Notional     decimal.Decimal
	SellFraction decimal.Decimal
}

type WalletConfig struct {
	InitialBalance decimal.Decimal
}

type MarketConfig struct {
	// Coins restricts the simulated market to these ids; empty lists every default coin.
	Coins        []string
	TickInterval time.Duration
	Seed         uint64
}

// LiveConfig enables the CoinGecko pass-through under /live.
type LiveConfig struct {
	Enabled bool
	// BaseURL empty uses the public CoinGecko api.
	BaseURL           string
	RequestsPerSecond float64
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// ConfigTmp is the yaml layout; decimals are strings to keep their precision.
type ConfigTmp struct {
	Mode   string `yaml:"mode"`
	AppID  string `yaml:"app_id,omitempty"`
	UserID string `yaml:"user_id,omitempty"`
	Symbol string `yaml:"symbol,omitempty"`

	Server struct {
		Addr        string   `yaml:"addr,omitempty"`
		CORSOrigins []string `yaml:"cors_origins,omitempty"`
		TLSDomains  []string `yaml:"tls_domains,omitempty"`
		CertCache   string   `yaml:"cert_cache,omitempty"`
	} `yaml:"server"`

	Feed struct {
		Source            string        `yaml:"source,omitempty"`
		BaseURL           string        `yaml:"base_url,omitempty"`
		PollInterval      time.Duration `yaml:"poll_interval,omitempty"`
		Points            int           `yaml:"points,omitempty"`
		RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	} `yaml:"feed"`

	Trade struct {
		Notional     string `yaml:"notional,omitempty"`
		SellFraction string `yaml:"sell_fraction,omitempty"`
	} `yaml:"trade"`

	Wallet struct {
		InitialBalance string `yaml:"initial_balance,omitempty"`
	} `yaml:"wallet"`

	Store struct {
		Dir string `yaml:"dir,omitempty"`
	} `yaml:"store"`

	TradeLog struct {
		Dir string `yaml:"dir,omitempty"`
	} `yaml:"tradelog"`

	Market struct {
		Coins        []string      `yaml:"coins,omitempty"`
		TickInterval time.Duration `yaml:"tick_interval,omitempty"`
		Seed         uint64        `yaml:"seed,omitempty"`
	} `yaml:"market"`

	Live struct {
		Enabled           bool    `yaml:"enabled,omitempty"`
		BaseURL           string  `yaml:"base_url,omitempty"`
		RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	} `yaml:"live"`

	Log struct {
		Level  string `yaml:"level,omitempty"`
		Format string `yaml:"format,omitempty"`
		File   string `yaml:"file,omitempty"`
	} `yaml:"log"`
}

// Default is the configuration used when neither file nor flag sets a key.
func Default() Config {
	return Config{
		Mode:   ModeAll,
		AppID:  "default-app-id",
		UserID: "demo",
		Symbol: "bitcoin",
		Server: ServerConfig{Addr: ":8080", CertCache: "cert-cache"},
		Feed: FeedConfig{
			Source:            SourceSimulated,
			PollInterval:      5 * time.Second,
			Points:            24,
			RequestsPerSecond: 1,
		},
		Trade: TradeConfig{
			Notional:     decimal.NewFromInt(1000),
			SellFraction: decimal.RequireFromString("0.5"),
		},
		Wallet:      WalletConfig{InitialBalance: decimal.NewFromInt(10000)},
		StoreDir:    "",
		TradeLogDir: "",
		Market:      MarketConfig{TickInterval: 5 * time.Second},
		Live:        LiveConfig{RequestsPerSecond: 1},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
}

// Get reads the process configuration: a yaml file when --config is given,
// flags otherwise. A .env file in the working directory is loaded first.
func Get() (Config, error) {
	_ = godotenv.Load()
	return Parse(os.Args[1:])
}

// Parse builds the configuration from args and the environment.
func Parse(args []string) (Config, error) {
	fl, err := parseFlags(args)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if fl.configPath != "" {
		cfg, err = Load(fl.configPath)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg, err = fl.toConfig()
		if err != nil {
			return Config{}, err
		}
	}
	cfg.Setup = fl.setup

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a yaml config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return FromTmp(tmp)
}

// FromTmp converts the yaml layout, filling omitted keys with defaults.
func FromTmp(c ConfigTmp) (Config, error) {
	cfg := Default()

	setString(&cfg.AppID, c.AppID)
	setString(&cfg.UserID, c.UserID)
	setString(&cfg.Symbol, strings.ToLower(c.Symbol))
	if c.Mode != "" {
		cfg.Mode = Mode(strings.ToLower(c.Mode))
	}

	setString(&cfg.Server.Addr, c.Server.Addr)
	setString(&cfg.Server.CertCache, c.Server.CertCache)
	cfg.Server.CORSOrigins = c.Server.CORSOrigins
	cfg.Server.TLSDomains = c.Server.TLSDomains

	setString(&cfg.Feed.Source, strings.ToLower(c.Feed.Source))
	setString(&cfg.Feed.BaseURL, c.Feed.BaseURL)
	if c.Feed.PollInterval > 0 {
		cfg.Feed.PollInterval = c.Feed.PollInterval
	}
	if c.Feed.Points > 0 {
		cfg.Feed.Points = c.Feed.Points
	}
	if c.Feed.RequestsPerSecond > 0 {
		cfg.Feed.RequestsPerSecond = c.Feed.RequestsPerSecond
	}

	var err error
	if cfg.Trade.Notional, err = decimalOr(c.Trade.Notional, cfg.Trade.Notional); err != nil {
		return Config{}, fmt.Errorf("incorrect 'trade.notional' param in yaml config (correct format is 1000), error: %w", err)
	}
	if cfg.Trade.SellFraction, err = decimalOr(c.Trade.SellFraction, cfg.Trade.SellFraction); err != nil {
		return Config{}, fmt.Errorf("incorrect 'trade.sell_fraction' param in yaml config (correct format is 0.5), error: %w", err)
	}
	if cfg.Wallet.InitialBalance, err = decimalOr(c.Wallet.InitialBalance, cfg.Wallet.InitialBalance); err != nil {
		return Config{}, fmt.Errorf("incorrect 'wallet.initial_balance' param in yaml config (correct format is 10000), error: %w", err)
	}

	cfg.StoreDir = c.Store.Dir
	cfg.TradeLogDir = c.TradeLog.Dir

	cfg.Market.Coins = c.Market.Coins
	if c.Market.TickInterval > 0 {
		cfg.Market.TickInterval = c.Market.TickInterval
	}
	cfg.Market.Seed = c.Market.Seed

	cfg.Live.Enabled = c.Live.Enabled
	cfg.Live.BaseURL = c.Live.BaseURL
	if c.Live.RequestsPerSecond > 0 {
		cfg.Live.RequestsPerSecond = c.Live.RequestsPerSecond
	}

	setString(&cfg.Log.Level, c.Log.Level)
	setString(&cfg.Log.Format, c.Log.Format)
	cfg.Log.File = c.Log.File

	return cfg, nil
}

// ToTmp is the inverse of FromTmp, used by the setup wizard.
func ToTmp(cfg Config) ConfigTmp {
	var c ConfigTmp
	c.Mode = string(cfg.Mode)
	c.AppID = cfg.AppID
	c.UserID = cfg.UserID
	c.Symbol = cfg.Symbol
	c.Server.Addr = cfg.Server.Addr
	c.Server.CORSOrigins = cfg.Server.CORSOrigins
	c.Server.TLSDomains = cfg.Server.TLSDomains
	c.Server.CertCache = cfg.Server.CertCache
	c.Feed.Source = cfg.Feed.Source
	c.Feed.BaseURL = cfg.Feed.BaseURL
	c.Feed.PollInterval = cfg.Feed.PollInterval
	c.Feed.Points = cfg.Feed.Points
	c.Feed.RequestsPerSecond = cfg.Feed.RequestsPerSecond
	c.Trade.Notional = cfg.Trade.Notional.String()
	c.Trade.SellFraction = cfg.Trade.SellFraction.String()
	c.Wallet.InitialBalance = cfg.Wallet.InitialBalance.String()
	c.Store.Dir = cfg.StoreDir
	c.TradeLog.Dir = cfg.TradeLogDir
	c.Market.Coins = cfg.Market.Coins
	c.Market.TickInterval = cfg.Market.TickInterval
	c.Market.Seed = cfg.Market.Seed
	c.Live.Enabled = cfg.Live.Enabled
	c.Live.BaseURL = cfg.Live.BaseURL
	c.Live.RequestsPerSecond = cfg.Live.RequestsPerSecond
	c.Log.Level = cfg.Log.Level
	c.Log.Format = cfg.Log.Format
	c.Log.File = cfg.Log.File
	return c
}

// Validate reports the first invalid key by name.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTestnet, ModeSynchronized, ModeAll:
	default:
		return fmt.Errorf("invalid 'mode' %q: must be testnet, synchronized or all", c.Mode)
	}
	switch c.Feed.Source {
	case SourceSimulated, SourceTestnet, SourceCoinGecko, SourceBinance, SourceBybit, SourceHyperliquid:
	default:
		return fmt.Errorf("invalid 'feed.source' %q", c.Feed.Source)
	}
	if c.Feed.Source == SourceTestnet && c.Feed.BaseURL == "" {
		return fmt.Errorf("'feed.base_url' is required for the testnet source")
	}
	if c.Symbol == "" {
		return fmt.Errorf("'symbol' is required")
	}
	if strings.TrimSpace(c.UserID) == "" || strings.Contains(c.UserID, "/") {
		return fmt.Errorf("invalid 'user_id' %q", c.UserID)
	}
	if c.AppID == "" || strings.Contains(c.AppID, "/") {
		return fmt.Errorf("invalid 'app_id' %q", c.AppID)
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("'feed.poll_interval' must be positive")
	}
	if c.Feed.Points <= 0 {
		return fmt.Errorf("'feed.points' must be positive")
	}
	if c.Feed.RequestsPerSecond <= 0 {
		return fmt.Errorf("'feed.requests_per_second' must be positive")
	}
	if !c.Trade.Notional.IsPositive() {
		return fmt.Errorf("'trade.notional' must be positive, got %s", c.Trade.Notional)
	}
	if !c.Trade.SellFraction.IsPositive() || c.Trade.SellFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("'trade.sell_fraction' must be in (0, 1], got %s", c.Trade.SellFraction)
	}
	if !c.Wallet.InitialBalance.IsPositive() {
		return fmt.Errorf("'wallet.initial_balance' must be positive, got %s", c.Wallet.InitialBalance)
	}
	if c.Market.TickInterval <= 0 {
		return fmt.Errorf("'market.tick_interval' must be positive")
	}
	if c.Live.Enabled && c.Live.RequestsPerSecond <= 0 {
		return fmt.Errorf("'live.requests_per_second' must be positive")
	}
	return nil
}

// ServesTestnet mode includes the testnet ledger.
func (c Config) ServesTestnet() bool {
	return c.Mode == ModeTestnet || c.Mode == ModeAll
}

// ServesWallets mode includes the synchronized wallet store.
func (c Config) ServesWallets() bool {
	return c.Mode == ModeSynchronized || c.Mode == ModeAll
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvUserID); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv(EnvAppID); v != "" {
		cfg.AppID = v
	}
	if v := os.Getenv(EnvStoreDir); v != "" {
		cfg.StoreDir = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func decimalOr(s string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}
