// Package events fans out domain events to in-process subscribers such as
// SSE and websocket streams.
package events

import (
	"sync"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const defaultBuffer = 64

// Broadcaster fans out events to all subscribers via buffered channels.
// It never blocks a publisher: a slow subscriber misses events.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
}

// PortfolioBroadcaster carries portfolio views of every session.
type PortfolioBroadcaster = Broadcaster[domain.PortfolioView]

// TradeBroadcaster carries testnet trade records as they are appended.
type TradeBroadcaster = Broadcaster[domain.TradeRecordEntry]

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// NewPortfolioBroadcaster is NewBroadcaster for portfolio views.
func NewPortfolioBroadcaster(buffer int) *PortfolioBroadcaster {
	return NewBroadcaster[domain.PortfolioView](buffer)
}

// NewTradeBroadcaster is NewBroadcaster for trade records.
func NewTradeBroadcaster(buffer int) *TradeBroadcaster {
	return NewBroadcaster[domain.TradeRecordEntry](buffer)
}

// Publish sends e to all subscribers, dropping it for readers whose buffer is full.
func (b *Broadcaster[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
