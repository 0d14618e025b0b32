// Command papertrade runs the paper-trading simulator: a testnet ledger over a
// simulated market and synchronized wallets valued at a live price feed.
//
// Usage:
//
//	papertrade --config config.yaml
//	papertrade --setup
//	papertrade (uses CLI arguments)
//
// Optional environment variables:
//
//	PAPERTRADE_USER_ID, PAPERTRADE_APP_ID, PAPERTRADE_STORE_DIR
//	BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal"
	"github.com/vadiminshakov/papertrade/internal/logging"
	"github.com/vadiminshakov/papertrade/internal/setup"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		if cfg, err = config.Load(path); err != nil {
			log.Fatal(err)
		}
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app, err := internal.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create app", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("papertrade stopped", zap.Error(err))
	}
}
