package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/pkg/retrier"
)

const (
	// DefaultPollInterval spacing of fetches.
	DefaultPollInterval = 5 * time.Second
	historyCapacity     = 2048
)

// Update is delivered to subscribers after every tick that changed something.
type Update struct {
	Symbol string
	// Latest newest sample held, zero before the first success.
	Latest domain.PriceSample
	Added  int
	// Err set when the tick's fetch failed after retries.
	Err error
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Symbol   string
	Interval time.Duration
	Points   int
	// Retrier bounds each tick's fetch retries. Defaults to two quick retries.
	Retrier *retrier.Retrier
}

// Poller fetches a symbol from a Source on a fixed interval and merges the
// result into an append-only history.
type Poller struct {
	source   Source
	symbol   string
	interval time.Duration
	points   int
	retry    *retrier.Retrier
	logger   *zap.Logger

	mu       sync.RWMutex
	history  *domain.PriceHistory
	degraded bool

	// held while subscribers run so cancel can wait for an in-flight call
	deliverMu sync.Mutex
	subs      map[uint64]func(Update)
	nextID    uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(source Source, cfg PollerConfig, logger *zap.Logger) (*Poller, error) {
	if source == nil {
		return nil, errors.New("price source is required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Points <= 0 {
		cfg.Points = DefaultPoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(cfg.Interval/10),
			retrier.WithMaxInterval(cfg.Interval/2),
			retrier.WithRetryIf(func(err error) bool { return !errors.Is(err, ErrUnknownCoin) }),
		)
	}

	return &Poller{
		source:   source,
		symbol:   cfg.Symbol,
		interval: cfg.Interval,
		points:   cfg.Points,
		retry:    cfg.Retrier,
		logger:   logger.With(zap.String("source", source.Name()), zap.String("symbol", cfg.Symbol)),
		history:  domain.NewPriceHistory(historyCapacity),
		subs:     make(map[uint64]func(Update)),
	}, nil
}

// Symbol polled symbol.
func (p *Poller) Symbol() string { return p.symbol }

// Latest returns the most recent sample without blocking on the network.
func (p *Poller) Latest() (domain.PriceSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.Latest()
}

// History returns a copy of the newest n samples.
func (p *Poller) History(n int) []domain.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.Last(n)
}

// Subscribe registers fn for updates. The returned cancel is idempotent and
// once it returns fn is not called again. fn must not call cancel itself.
func (p *Poller) Subscribe(fn func(Update)) func() {
	p.deliverMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.deliverMu.Unlock()

	return func() {
		p.deliverMu.Lock()
		delete(p.subs, id)
		p.deliverMu.Unlock()
	}
}

// Start polls immediately and then every interval until Stop or ctx is done.
// Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)
}

// Stop halts polling, waits for the loop to exit and drops all subscribers.
// The poller can be started again.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.deliverMu.Lock()
	p.subs = make(map[uint64]func(Update))
	p.deliverMu.Unlock()
}

// Run starts the poller and blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one fetch-merge-notify cycle.
func (p *Poller) Poll(ctx context.Context) {
	samples, err := retrier.DoWithData(ctx, p.retry, func(ctx context.Context) ([]domain.PriceSample, error) {
		return p.source.Fetch(ctx, p.symbol, p.points)
	})
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	if err != nil {
		p.degraded = true
		latest, _ := p.history.Latest()
		p.mu.Unlock()

		p.logger.Warn("price fetch failed", zap.Error(err))
		p.notify(Update{Symbol: p.symbol, Latest: latest, Err: err})
		return
	}

	added := p.history.AppendNewer(samples)
	latest, _ := p.history.Latest()
	recovered := p.degraded
	p.degraded = false
	p.mu.Unlock()

	if added == 0 && !recovered {
		return
	}
	p.logger.Debug("prices merged", zap.Int("added", added), zap.String("price", latest.Price.String()))
	p.notify(Update{Symbol: p.symbol, Latest: latest, Added: added})
}

func (p *Poller) notify(u Update) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	for _, fn := range p.subs {
		fn(u)
	}
}
