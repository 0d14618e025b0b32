package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// WalletStore is the part of the wallet store the executor needs.
type WalletStore interface {
	Read(ctx context.Context, userID string) (domain.WalletState, error)
	Write(ctx context.Context, userID string, state domain.WalletState) error
}

// VersionedStore is implemented by stores with revision checked writes.
type VersionedStore interface {
	ReadVersioned(ctx context.Context, userID string) (domain.WalletState, uint64, error)
	CompareAndSwap(ctx context.Context, userID string, expected uint64, state domain.WalletState) (uint64, error)
}

// LatestPricer returns the most recently observed sample without blocking.
type LatestPricer interface {
	Latest() (domain.PriceSample, bool)
}

// Result describes one executed or rejected trade.
type Result struct {
	UserID string
	Kind   domain.TradeKind
	Price  domain.PriceSample
	Before domain.WalletState
	After  domain.WalletState
	// Revision of the stored wallet after a revision checked trade.
	Revision uint64
}

// Executor runs read-execute-write for a user. Only one sequence per user may
// be in flight; a concurrent request for the same user fails with ErrBusy.
// Sequences from other processes can still interleave (last writer wins).
type Executor struct {
	engine *Engine
	store  WalletStore
	prices LatestPricer
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewExecutor creates an Executor.
func NewExecutor(engine *Engine, store WalletStore, prices LatestPricer, logger *zap.Logger) (*Executor, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if store == nil {
		return nil, errors.New("wallet store is required")
	}
	if prices == nil {
		return nil, errors.New("price source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		engine:   engine,
		store:    store,
		prices:   prices,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Busy reports whether a trade for userID is in flight.
func (x *Executor) Busy(userID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.inFlight[userID]
	return ok
}

// Trade executes kind for userID at the latest observed price.
// The write is unconditional, so a concurrent writer elsewhere may be overwritten.
func (x *Executor) Trade(ctx context.Context, userID string, kind domain.TradeKind) (Result, error) {
	read := func(ctx context.Context) (domain.WalletState, uint64, error) {
		state, err := x.store.Read(ctx, userID)
		return state, 0, err
	}
	write := func(ctx context.Context, next domain.WalletState) (uint64, error) {
		return 0, x.store.Write(ctx, userID, next)
	}
	return x.run(ctx, userID, kind, read, write)
}

// TradeIfRevision executes kind only if the stored wallet is still at revision
// expected, and fails with ErrRevisionMismatch otherwise.
func (x *Executor) TradeIfRevision(ctx context.Context, userID string, kind domain.TradeKind, expected uint64) (Result, error) {
	store, ok := x.store.(VersionedStore)
	if !ok {
		return Result{UserID: userID, Kind: kind}, errors.New("wallet store does not support revisions")
	}

	read := func(ctx context.Context) (domain.WalletState, uint64, error) {
		state, rev, err := store.ReadVersioned(ctx, userID)
		if err != nil {
			return state, rev, err
		}
		if rev != expected {
			return state, rev, errors.Wrapf(domain.ErrRevisionMismatch, "expected %d, stored %d", expected, rev)
		}
		return state, rev, nil
	}
	write := func(ctx context.Context, next domain.WalletState) (uint64, error) {
		return store.CompareAndSwap(ctx, userID, expected, next)
	}
	return x.run(ctx, userID, kind, read, write)
}

func (x *Executor) run(
	ctx context.Context,
	userID string,
	kind domain.TradeKind,
	read func(context.Context) (domain.WalletState, uint64, error),
	write func(context.Context, domain.WalletState) (uint64, error),
) (Result, error) {
	if !x.acquire(userID) {
		return Result{UserID: userID, Kind: kind}, domain.ErrBusy
	}
	defer x.release(userID)

	current, revision, err := read(ctx)
	if err != nil {
		return Result{UserID: userID, Kind: kind, Revision: revision}, errors.Wrap(err, "read wallet")
	}

	sample, ok := x.prices.Latest()
	price := decimal.Zero
	if ok {
		price = sample.Price
	}

	res := Result{UserID: userID, Kind: kind, Price: sample, Before: current, After: current, Revision: revision}

	next, err := x.engine.Execute(current, kind, price)
	if err != nil {
		x.logger.Info("trade rejected",
			zap.String("user", userID),
			zap.String("kind", kind.String()),
			zap.String("price", price.String()),
			zap.String("reason", domain.ReasonCode(err)))
		return res, err
	}

	revision, err = write(ctx, next)
	if err != nil {
		return res, errors.Wrap(err, "write wallet")
	}
	res.After = next
	res.Revision = revision

	x.logger.Info("trade executed",
		zap.String("user", userID),
		zap.String("kind", kind.String()),
		zap.String("price", price.String()),
		zap.String("balance", next.Balance.String()),
		zap.String("shares", next.Shares.String()))
	return res, nil
}

func (x *Executor) acquire(userID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.inFlight[userID]; ok {
		return false
	}
	x.inFlight[userID] = struct{}{}
	return true
}

func (x *Executor) release(userID string) {
	x.mu.Lock()
	delete(x.inFlight, userID)
	x.mu.Unlock()
}
