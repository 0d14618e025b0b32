// Package synchronizer keeps a live portfolio view of one user and symbol by
// following the wallet store and the price poller.
package synchronizer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/events"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
	"github.com/vadiminshakov/papertrade/internal/storage/walletstore"
	"github.com/vadiminshakov/papertrade/pkg/retrier"
)

// WalletSubscriber is the subscription half of the wallet store.
type WalletSubscriber interface {
	Subscribe(ctx context.Context, userID string, fn func(domain.WalletState)) (walletstore.Unsubscribe, error)
}

// PriceStream is the subscription half of the poller.
type PriceStream interface {
	Subscribe(fn func(pricefeed.Update)) func()
	Latest() (domain.PriceSample, bool)
}

const (
	defaultSubscribeRetries = 5
	defaultRetryInterval    = 500 * time.Millisecond
)

// Config configures a session.
type Config struct {
	UserID string
	Symbol string
	// SubscribeRetries bounds wallet subscription attempts after the first.
	SubscribeRetries int
	// RetryInterval wait before the first resubscription.
	RetryInterval time.Duration
	// Broadcaster receives every view when set.
	Broadcaster *events.PortfolioBroadcaster
}

// Synchronizer recomputes the portfolio view on every wallet or price input
// and forwards it to observers. It holds only the last input of each kind.
type Synchronizer struct {
	userID      string
	symbol      string
	wallets     WalletSubscriber
	prices      PriceStream
	retry       *retrier.Retrier
	broadcaster *events.PortfolioBroadcaster
	logger      *zap.Logger
	now         func() time.Time

	// emitMu orders compute+deliver so observers never see an older view last
	emitMu sync.Mutex

	mu         sync.Mutex
	active     bool
	wallet     domain.WalletState
	haveWallet bool
	sample     domain.PriceSample
	havePrice  bool
	storeErr   error
	feedErr    error
	view       domain.PortfolioView
	haveView   bool
	observers  map[uint64]func(domain.PortfolioView)
	nextID     uint64

	runMu       sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	unsubWallet walletstore.Unsubscribe
	unsubPrice  func()
}

// New creates a stopped session.
func New(wallets WalletSubscriber, prices PriceStream, cfg Config, logger *zap.Logger) (*Synchronizer, error) {
	if wallets == nil {
		return nil, errors.New("wallet store is required")
	}
	if prices == nil {
		return nil, errors.New("price stream is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubscribeRetries <= 0 {
		cfg.SubscribeRetries = defaultSubscribeRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}

	s := &Synchronizer{
		userID:      cfg.UserID,
		symbol:      cfg.Symbol,
		wallets:     wallets,
		prices:      prices,
		broadcaster: cfg.Broadcaster,
		logger:      logger.With(zap.String("user", cfg.UserID), zap.String("symbol", cfg.Symbol)),
		now:         time.Now,
		observers:   make(map[uint64]func(domain.PortfolioView)),
	}
	s.retry = retrier.New(
		retrier.WithMaxRetries(cfg.SubscribeRetries),
		retrier.WithInitialInterval(cfg.RetryInterval),
		retrier.WithNotify(s.onSubscribeRetry),
	)
	return s, nil
}

// Start subscribes to prices and the wallet. Starting a running session is a no-op.
// A failing wallet subscription is retried in the background while the view is degraded.
func (s *Synchronizer) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	s.mu.Lock()
	s.active = true
	s.wallet, s.haveWallet = domain.WalletState{}, false
	s.sample, s.havePrice = domain.PriceSample{}, false
	s.storeErr, s.feedErr = nil, nil
	s.haveView = false
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.unsubPrice = s.prices.Subscribe(s.onPrice)
	if latest, ok := s.prices.Latest(); ok {
		s.onPrice(pricefeed.Update{Symbol: s.symbol, Latest: latest})
	}

	go s.subscribeWallet(runCtx, s.done)
}

// Stop cancels both subscriptions; no input is processed once it returns.
// Observers stay registered and see the next session after a restart.
func (s *Synchronizer) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	if s.unsubWallet != nil {
		s.unsubWallet()
		s.unsubWallet = nil
	}
	s.unsubPrice()
	s.unsubPrice = nil
	s.cancel = nil

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Observe registers fn for views and delivers the current one if any.
// The returned cancel is idempotent; fn must not call it.
func (s *Synchronizer) Observe(fn func(domain.PortfolioView)) func() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	view, ok := s.view, s.haveView
	s.mu.Unlock()

	if ok {
		fn(view)
	}

	return func() {
		s.emitMu.Lock()
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
		s.emitMu.Unlock()
	}
}

// View returns the last computed view.
func (s *Synchronizer) View() (domain.PortfolioView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.haveView
}

func (s *Synchronizer) subscribeWallet(ctx context.Context, done chan struct{}) {
	defer close(done)

	unsub, err := retrier.DoWithData(ctx, s.retry, func(ctx context.Context) (walletstore.Unsubscribe, error) {
		return s.wallets.Subscribe(ctx, s.userID, s.onWallet)
	})
	if ctx.Err() != nil {
		if unsub != nil {
			unsub()
		}
		return
	}
	if err != nil {
		s.logger.Error("wallet subscription gave up", zap.Error(err))
		s.update(func() { s.storeErr = errors.Wrap(domain.ErrStoreUnavailable, err.Error()) })
		return
	}
	s.unsubWallet = unsub
}

func (s *Synchronizer) onSubscribeRetry(attempt int, err error, wait time.Duration) {
	s.logger.Warn("wallet subscription failed, retrying",
		zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	s.update(func() { s.storeErr = err })
}

func (s *Synchronizer) onWallet(w domain.WalletState) {
	s.update(func() {
		s.wallet, s.haveWallet = w, true
		s.storeErr = nil
	})
}

func (s *Synchronizer) onPrice(u pricefeed.Update) {
	s.update(func() {
		if u.Err != nil {
			s.feedErr = u.Err
			return
		}
		s.feedErr = nil
		if !u.Latest.IsZero() {
			s.sample, s.havePrice = u.Latest, true
		}
	})
}

// update applies apply to the inputs, recomputes the view and forwards it.
func (s *Synchronizer) update(apply func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	apply()
	view := s.computeLocked()
	s.view, s.haveView = view, true
	observers := make([]func(domain.PortfolioView), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(view)
	}
}

func (s *Synchronizer) computeLocked() domain.PortfolioView {
	view := domain.NewPortfolioView(s.userID, s.symbol, s.wallet, s.sample, s.now())

	switch {
	case s.storeErr != nil:
		view.Status = domain.ViewDegraded
		view.Reason = reason(s.storeErr, domain.ErrStoreUnavailable)
	case s.feedErr != nil:
		view.Status = domain.ViewDegraded
		view.Reason = reason(s.feedErr, domain.ErrFeedUnavailable)
	case !s.haveWallet || !s.havePrice:
		view.Status = domain.ViewWarmingUp
	}
	return view
}

// reason returns the error's code, falling back to the given category.
func reason(err, fallback error) string {
	if code := domain.ReasonCode(err); code != "Internal" {
		return code
	}
	return domain.ReasonCode(fallback)
}
