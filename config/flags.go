package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type flagValues struct {
	configPath string
	setup      bool

	mode         string
	addr         string
	cors         string
	tlsDomains   string
	appID        string
	userID       string
	symbol       string
	source       string
	baseURL      string
	pollInterval time.Duration
	points       int
	rps          float64
	notional     string
	sellFraction string
	balance      string
	storeDir     string
	tradeLogDir  string
	coins        string
	tick         time.Duration
	seed         uint64
	live         bool
	liveURL      string
	liveRPS      float64
	logLevel     string
	logFormat    string
	logFile      string
}

func parseFlags(args []string) (flagValues, error) {
	d := Default()
	var v flagValues

	fs := flag.NewFlagSet("papertrade", flag.ContinueOnError)
	fs.StringVar(&v.configPath, "config", "", "path to yaml config")
	fs.BoolVar(&v.setup, "setup", false, "run the configuration wizard")

	fs.StringVar(&v.mode, "mode", string(d.Mode), "served surfaces: testnet, synchronized or all")
	fs.StringVar(&v.addr, "addr", d.Server.Addr, "http listen address")
	fs.StringVar(&v.cors, "cors", "", "comma separated allowed origins, empty allows any")
	fs.StringVar(&v.tlsDomains, "tlsdomains", "", "comma separated domains for automatic TLS")
	fs.StringVar(&v.appID, "appid", d.AppID, "application namespace of wallet documents")
	fs.StringVar(&v.userID, "user", d.UserID, "user of the default portfolio session")
	fs.StringVar(&v.symbol, "symbol", d.Symbol, "coin traded in synchronized mode, example: bitcoin")
	fs.StringVar(&v.source, "source", d.Feed.Source, "price source: simulated, testnet, coingecko, binance, bybit, hyperliquid")
	fs.StringVar(&v.baseURL, "feedurl", "", "base url of the price source")
	fs.DurationVar(&v.pollInterval, "pollpriceinterval", d.Feed.PollInterval, "poll market price interval")
	fs.IntVar(&v.points, "points", d.Feed.Points, "samples requested per poll")
	fs.Float64Var(&v.rps, "rps", d.Feed.RequestsPerSecond, "max requests per second to the price source")
	fs.StringVar(&v.notional, "notional", d.Trade.Notional.String(), "currency spent per BUY")
	fs.StringVar(&v.sellFraction, "sellfraction", d.Trade.SellFraction.String(), "fraction of shares sold per SELL, example: 0.5")
	fs.StringVar(&v.balance, "balance", d.Wallet.InitialBalance.String(), "initial cash of a new wallet")
	fs.StringVar(&v.storeDir, "storedir", "", "pebble directory for wallets, empty keeps them in memory")
	fs.StringVar(&v.tradeLogDir, "tradelogdir", "", "wal directory for testnet trades, empty keeps them in memory")
	fs.StringVar(&v.coins, "coins", "", "comma separated coin ids listed by the simulated market")
	fs.DurationVar(&v.tick, "tickinterval", d.Market.TickInterval, "simulated market tick interval")
	fs.Uint64Var(&v.seed, "seed", 0, "simulated market seed")
	fs.BoolVar(&v.live, "live", false, "serve live CoinGecko data under /live")
	fs.StringVar(&v.liveURL, "liveurl", "", "base url of the live CoinGecko api, empty uses the public one")
	fs.Float64Var(&v.liveRPS, "liverps", d.Live.RequestsPerSecond, "max requests per second to the live api")
	fs.StringVar(&v.logLevel, "loglevel", d.Log.Level, "log level")
	fs.StringVar(&v.logFormat, "logformat", d.Log.Format, "log format: console or json")
	fs.StringVar(&v.logFile, "logfile", "", "rotated log file, empty logs to stdout only")

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	return v, nil
}

func (v flagValues) toConfig() (Config, error) {
	cfg := Default()
	cfg.Mode = Mode(strings.ToLower(v.mode))
	cfg.Server.Addr = v.addr
	cfg.Server.CORSOrigins = splitList(v.cors)
	cfg.Server.TLSDomains = splitList(v.tlsDomains)
	cfg.AppID = v.appID
	cfg.UserID = v.userID
	cfg.Symbol = strings.ToLower(v.symbol)
	cfg.Feed = FeedConfig{
		Source:            strings.ToLower(v.source),
		BaseURL:           v.baseURL,
		PollInterval:      v.pollInterval,
		Points:            v.points,
		RequestsPerSecond: v.rps,
	}

	var err error
	if cfg.Trade.Notional, err = decimal.NewFromString(v.notional); err != nil {
		return Config{}, fmt.Errorf("invalid --notional provided, --notional=%s", v.notional)
	}
	if cfg.Trade.SellFraction, err = decimal.NewFromString(v.sellFraction); err != nil {
		return Config{}, fmt.Errorf("invalid --sellfraction provided, --sellfraction=%s", v.sellFraction)
	}
	if cfg.Wallet.InitialBalance, err = decimal.NewFromString(v.balance); err != nil {
		return Config{}, fmt.Errorf("invalid --balance provided, --balance=%s", v.balance)
	}

	cfg.StoreDir = v.storeDir
	cfg.TradeLogDir = v.tradeLogDir
	cfg.Market = MarketConfig{Coins: splitList(v.coins), TickInterval: v.tick, Seed: v.seed}
	cfg.Live = LiveConfig{Enabled: v.live, BaseURL: v.liveURL, RequestsPerSecond: v.liveRPS}
	cfg.Log = LogConfig{Level: v.logLevel, Format: v.logFormat, File: v.logFile}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
