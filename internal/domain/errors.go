package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientBalance BUY needs more cash than the wallet holds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNoHoldings SELL with zero shares.
	ErrNoHoldings = errors.New("no holdings")
	// ErrInvalidPrice price is zero or negative, usually a feed that has not warmed up.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidTrade unknown trade kind or malformed amount.
	ErrInvalidTrade = errors.New("invalid trade")
	// ErrNegativeState arithmetic produced a negative balance or share count.
	ErrNegativeState = errors.New("negative wallet state")
	// ErrStoreUnavailable wallet store read, write or subscribe failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrFeedUnavailable price source failed.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrBusy a trade for the same user is still in flight.
	ErrBusy = errors.New("trade already in flight")
	// ErrRevisionMismatch compare-and-swap lost against a concurrent write.
	ErrRevisionMismatch = errors.New("revision mismatch")
	// ErrOutOfOrder sample older than the last one in a history.
	ErrOutOfOrder = errors.New("price sample out of order")
)

// Rejection is returned by the trade engine when a trade is refused.
// The wallet state passed to the engine is left untouched.
type Rejection struct {
	Kind   TradeKind
	Reason error
	Detail string
}

// NewRejection creates a rejection for the given reason.
func NewRejection(kind TradeKind, reason error, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s rejected: %s", r.Kind, r.Reason)
	}
	return fmt.Sprintf("%s rejected: %s: %s", r.Kind, r.Reason, r.Detail)
}

// Unwrap exposes the reason to errors.Is.
func (r *Rejection) Unwrap() error { return r.Reason }

// ReasonCode maps an error onto the stable code used in API responses and views.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrNoHoldings):
		return "NoHoldings"
	case errors.Is(err, ErrInvalidPrice):
		return "InvalidPrice"
	case errors.Is(err, ErrInvalidTrade):
		return "InvalidTrade"
	case errors.Is(err, ErrNegativeState):
		return "NegativeState"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrFeedUnavailable):
		return "FeedUnavailable"
	case errors.Is(err, ErrBusy):
		return "Busy"
	case errors.Is(err, ErrRevisionMismatch):
		return "RevisionMismatch"
	default:
		return "Internal"
	}
}
