package walletstore

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// recorder collects states delivered to a subscription.
type recorder struct {
	mu     sync.Mutex
	states []domain.WalletState
	calls  atomic.Int32
}

func (r *recorder) fn(s domain.WalletState) {
	r.calls.Add(1)
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []domain.WalletState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.WalletState(nil), r.states...)
}

func (r *recorder) waitFor(t *testing.T, n int) []domain.WalletState {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func state(balance, shares int64) domain.WalletState {
	return domain.WalletState{Balance: decimal.NewFromInt(balance), Shares: decimal.NewFromInt(shares)}
}

// countingBackend counts puts on top of the memory backend.
type countingBackend struct {
	memoryBackend
	puts atomic.Int32
}

func (c *countingBackend) put(key string, payload []byte) error {
	c.puts.Add(1)
	return c.memoryBackend.put(key, payload)
}

func TestDocumentStore_ReadCreatesDefault(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()

	got, err := s.Read(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewWalletState(domain.DefaultInitialBalance)))
}

func TestDocumentStore_ConcurrentFirstReadsInitialiseOnce(t *testing.T) {
	b := &countingBackend{memoryBackend: memoryBackend{docs: make(map[string][]byte)}}
	s := newDocumentStore("app", decimal.NewFromInt(500), b)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Read(context.Background(), "bob")
			assert.NoError(t, err)
			assert.True(t, got.Balance.Equal(decimal.NewFromInt(500)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.puts.Load())
}

func TestDocumentStore_WriteThenRead(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "carol", state(9000, 10)))
	got, err := s.Read(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, got.Equal(state(9000, 10)))

	err = s.Write(ctx, "carol", state(-1, 0))
	assert.ErrorIs(t, err, domain.ErrNegativeState)

	got, err = s.Read(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, got.Equal(state(9000, 10)))
}

func TestDocumentStore_DocumentLayout(t *testing.T) {
	b := &memoryBackend{docs: make(map[string][]byte)}
	s := newDocumentStore("papertrade", decimal.Zero, b)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), "dave", state(9000, 10)))

	payload, ok := b.docs["artifacts/papertrade/users/dave/current_state"]
	require.True(t, ok)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, "dave", raw["userId"])
	assert.Equal(t, "9000", raw["balance"])
	assert.Equal(t, "10", raw["shares"])
	assert.EqualValues(t, 1, raw["revision"])
}

func TestDocumentStore_InvalidUserID(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()

	_, err := s.Read(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = s.Read(context.Background(), "a/b")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestDocumentStore_ClosedIsUnavailable(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	require.NoError(t, s.Close())

	_, err := s.Read(context.Background(), "erin")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Write(context.Background(), "erin", state(1, 1)), domain.ErrStoreUnavailable)
}

func TestDocumentStore_CompareAndSwap(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()
	ctx := context.Background()

	_, rev, err := s.ReadVersioned(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rev)

	rev, err = s.CompareAndSwap(ctx, "frank", rev, state(9000, 10))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	// a writer holding the stale revision loses
	_, err = s.CompareAndSwap(ctx, "frank", 0, state(1, 1))
	assert.ErrorIs(t, err, domain.ErrRevisionMismatch)

	got, rev, err := s.ReadVersioned(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
	assert.True(t, got.Equal(state(9000, 10)))
}

func TestDocumentStore_SubscribeDeliversInitialThenChanges(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()
	ctx := context.Background()

	var r recorder
	unsub, err := s.Subscribe(ctx, "gina", r.fn)
	require.NoError(t, err)
	defer unsub()

	got := r.waitFor(t, 1)
	assert.True(t, got[0].Equal(domain.NewWalletState(domain.DefaultInitialBalance)))

	require.NoError(t, s.Write(ctx, "gina", state(9000, 10)))
	require.NoError(t, s.Write(ctx, "gina", state(9500, 5)))

	got = r.waitFor(t, 3)
	assert.True(t, got[1].Equal(state(9000, 10)))
	assert.True(t, got[2].Equal(state(9500, 5)))
}

func TestDocumentStore_SubscriptionsAreIndependent(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()
	ctx := context.Background()

	var first, second recorder
	unsubFirst, err := s.Subscribe(ctx, "hank", first.fn)
	require.NoError(t, err)
	unsubSecond, err := s.Subscribe(ctx, "hank", second.fn)
	require.NoError(t, err)
	defer unsubSecond()

	first.waitFor(t, 1)
	second.waitFor(t, 1)

	unsubFirst()
	unsubFirst()

	require.NoError(t, s.Write(ctx, "hank", state(9000, 10)))

	got := second.waitFor(t, 2)
	assert.True(t, got[1].Equal(state(9000, 10)))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), first.calls.Load())
}

func TestDocumentStore_NoCallsAfterUnsubscribeReturns(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()
	ctx := context.Background()

	var (
		r        recorder
		stopped  atomic.Bool
		violated atomic.Bool
	)
	unsub, err := s.Subscribe(ctx, "ivy", func(w domain.WalletState) {
		if stopped.Load() {
			violated.Store(true)
		}
		r.fn(w)
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 200; i++ {
			_ = s.Write(ctx, "ivy", state(i, 0))
		}
	}()

	r.waitFor(t, 2)
	unsub()
	stopped.Store(true)
	<-done

	time.Sleep(20 * time.Millisecond)
	assert.False(t, violated.Load())
}

func TestDocumentStore_SubscriptionEndsWithContext(t *testing.T) {
	s := NewMemoryStore("app", decimal.Zero)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var r recorder
	unsub, err := s.Subscribe(ctx, "jack", r.fn)
	require.NoError(t, err)
	defer unsub()
	r.waitFor(t, 1)

	cancel()
	require.Eventually(t, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		return len(s.hub.subs["jack"]) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Write(context.Background(), "jack", state(1, 1)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load())
}
