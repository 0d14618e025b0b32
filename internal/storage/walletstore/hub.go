package walletstore

import (
	"sync"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// hub keeps the subscriptions of every user.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscription]struct{})}
}

func (h *hub) add(userID string, fn func(domain.WalletState)) *subscription {
	sub := newSubscription(fn)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go sub.run()
	return sub
}

func (h *hub) remove(userID string, sub *subscription) {
	h.mu.Lock()
	if set, ok := h.subs[userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()

	sub.stop()
}

func (h *hub) publish(userID string, state domain.WalletState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[userID] {
		sub.push(state)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[*subscription]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			sub.stop()
		}
	}
}

// subscription queues states and hands them to fn one at a time in order.
type subscription struct {
	fn func(domain.WalletState)

	mu      sync.Mutex
	pending []domain.WalletState
	closed  bool

	// held while fn runs so stop can wait for an in-flight call
	deliver sync.Mutex
	wake    chan struct{}
	once    sync.Once
}

func newSubscription(fn func(domain.WalletState)) *subscription {
	return &subscription{fn: fn, wake: make(chan struct{}, 1)}
}

func (s *subscription) push(state domain.WalletState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, state)
	s.mu.Unlock()

	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for range s.wake {
		for {
			next, ok, closed := s.next()
			if closed {
				return
			}
			if !ok {
				break
			}
			s.fn(next)
			s.deliver.Unlock()
		}
	}
}

// next pops a pending state. On ok the deliver lock stays held for the call.
func (s *subscription) next() (domain.WalletState, bool, bool) {
	s.deliver.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.deliver.Unlock()
		return domain.WalletState{}, false, true
	}
	if len(s.pending) == 0 {
		s.deliver.Unlock()
		return domain.WalletState{}, false, false
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, true, false
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.deliver.Lock()
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		s.deliver.Unlock()
		s.signal()
	})
}
