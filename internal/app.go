package internal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/events"
	"github.com/vadiminshakov/papertrade/internal/services/engine"
	"github.com/vadiminshakov/papertrade/internal/services/ledger"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
	"github.com/vadiminshakov/papertrade/internal/services/synchronizer"
	"github.com/vadiminshakov/papertrade/internal/storage/tradelog"
	"github.com/vadiminshakov/papertrade/internal/storage/walletstore"
	"github.com/vadiminshakov/papertrade/internal/web"
)

const broadcastBuffer = 64

// App owns every long-running component of one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	market     *pricefeed.SimulatedMarket
	tradeLog   *tradelog.Log
	ledger     *ledger.Ledger
	wallets    *walletstore.DocumentStore
	poller     *pricefeed.Poller
	executor   *engine.Executor
	session    *synchronizer.Synchronizer
	portfolios *events.PortfolioBroadcaster
	trades     *events.TradeBroadcaster
	server     *web.Server

	closeOnce sync.Once
}

// New wires the components selected by cfg.Mode. Nothing runs until Run.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		portfolios: events.NewPortfolioBroadcaster(broadcastBuffer),
		trades:     events.NewTradeBroadcaster(broadcastBuffer),
	}

	if cfg.ServesTestnet() || cfg.Feed.Source == config.SourceSimulated {
		coins, err := listedCoins(cfg.Market.Coins)
		if err != nil {
			return nil, err
		}
		a.market = pricefeed.NewSimulatedMarket(pricefeed.MarketConfig{Coins: coins, Seed: cfg.Market.Seed})
	}

	if cfg.ServesTestnet() {
		if err := a.initTestnet(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.ServesWallets() {
		if err := a.initWallets(); err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := web.Deps{
		Portfolios: a.portfolios,
		Trades:     a.trades,
	}
	if a.market != nil {
		deps.Market = a.market
	}
	if a.ledger != nil {
		deps.Ledger = a.ledger
	}
	if a.wallets != nil {
		deps.Trader = a.executor
		deps.Wallets = a.wallets
		deps.Sessions = a.newSession
	}
	if cfg.Live.Enabled {
		deps.Live = pricefeed.NewCoinGeckoSource(cfg.Live.BaseURL, cfg.Live.RequestsPerSecond)
	}
	a.server = web.NewServer(web.Config{
		Addr:        cfg.Server.Addr,
		Symbol:      cfg.Symbol,
		CORSOrigins: cfg.Server.CORSOrigins,
		TLSDomains:  cfg.Server.TLSDomains,
		CertCache:   cfg.Server.CertCache,
	}, deps, logger.Named("web"))

	return a, nil
}

func (a *App) initTestnet() error {
	log, err := tradelog.Open(a.cfg.TradeLogDir)
	if err != nil {
		return errors.Wrap(err, "open trade log")
	}
	a.tradeLog = log

	a.ledger, err = ledger.New(a.market, log,
		ledger.Config{InitialBalance: a.cfg.Wallet.InitialBalance},
		a.logger.Named("ledger"),
		ledger.WithBroadcaster(a.trades))
	if err != nil {
		return errors.Wrap(err, "create testnet ledger")
	}
	return nil
}

func (a *App) initWallets() error {
	if a.cfg.StoreDir != "" {
		store, err := walletstore.NewPebbleStore(walletstore.PebbleConfig{
			Dir:            a.cfg.StoreDir,
			AppID:          a.cfg.AppID,
			InitialBalance: a.cfg.Wallet.InitialBalance,
		})
		if err != nil {
			return errors.Wrap(err, "open wallet store")
		}
		a.wallets = store
	} else {
		a.wallets = walletstore.NewMemoryStore(a.cfg.AppID, a.cfg.Wallet.InitialBalance)
	}

	source, symbol, err := newPriceSource(a.cfg, a.market)
	if err != nil {
		return err
	}
	a.poller, err = pricefeed.NewPoller(source, pricefeed.PollerConfig{
		Symbol:   symbol,
		Interval: a.cfg.Feed.PollInterval,
		Points:   a.cfg.Feed.Points,
	}, a.logger.Named("poller"))
	if err != nil {
		return errors.Wrap(err, "create price poller")
	}

	eng, err := engine.New(engine.Rules{Notional: a.cfg.Trade.Notional, Fraction: a.cfg.Trade.SellFraction})
	if err != nil {
		return errors.Wrap(err, "create trade engine")
	}
	a.executor, err = engine.NewExecutor(eng, a.wallets, a.poller, a.logger.Named("executor"))
	if err != nil {
		return errors.Wrap(err, "create trade executor")
	}

	// the configured user's session feeds /portfolio/stream
	a.session, err = synchronizer.New(a.wallets, a.poller, synchronizer.Config{
		UserID:      a.cfg.UserID,
		Symbol:      symbol,
		Broadcaster: a.portfolios,
	}, a.logger.Named("synchronizer"))
	if err != nil {
		return errors.Wrap(err, "create portfolio session")
	}
	return nil
}

// newSession builds a per-connection session on the shared poller.
func (a *App) newSession(userID string) (web.Session, error) {
	return synchronizer.New(a.wallets, a.poller, synchronizer.Config{
		UserID: userID,
		Symbol: a.poller.Symbol(),
	}, a.logger.Named("synchronizer"))
}

// Server http front, for tests and embedding.
func (a *App) Server() *web.Server { return a.server }

// Run starts the market, the poller, the default session and the web server,
// and blocks until ctx is done or one of them fails. Resources are closed on return.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	if a.market != nil {
		g.Go(func() error {
			return a.market.Run(ctx, a.cfg.Market.TickInterval)
		})
	}
	if a.poller != nil {
		g.Go(func() error {
			return a.poller.Run(ctx)
		})
	}
	if a.session != nil {
		g.Go(func() error {
			a.session.Start(ctx)
			<-ctx.Done()
			a.session.Stop()
			return nil
		})
	}
	g.Go(func() error {
		return a.server.Start(ctx)
	})

	a.logger.Info("papertrade started",
		zap.String("mode", string(a.cfg.Mode)),
		zap.String("source", a.cfg.Feed.Source),
		zap.String("symbol", a.cfg.Symbol),
		zap.String("addr", a.cfg.Server.Addr))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the stores. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.wallets != nil {
			if err := a.wallets.Close(); err != nil {
				a.logger.Warn("close wallet store", zap.Error(err))
			}
		}
		if a.tradeLog != nil {
			if err := a.tradeLog.Close(); err != nil {
				a.logger.Warn("close trade log", zap.Error(err))
			}
		}
	})
}
