// Package walletstore persists one wallet document per user and notifies
// subscribers of every persisted change.
package walletstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// DefaultAppID namespaces documents when no app id is configured.
const DefaultAppID = "default-app-id"

// ErrInvalidUserID user id is empty or contains a path separator.
var ErrInvalidUserID = errors.New("invalid user id")

// Unsubscribe stops a subscription. It is idempotent and once it returns the
// callback is not invoked again. It must not be called from inside the callback.
type Unsubscribe func()

// Store is the wallet persistence contract used by the executor and synchronizer.
type Store interface {
	Read(ctx context.Context, userID string) (domain.WalletState, error)
	Write(ctx context.Context, userID string, state domain.WalletState) error
	Subscribe(ctx context.Context, userID string, fn func(domain.WalletState)) (Unsubscribe, error)
}

// Versioned is implemented by stores that support optimistic concurrency.
type Versioned interface {
	ReadVersioned(ctx context.Context, userID string) (domain.WalletState, uint64, error)
	CompareAndSwap(ctx context.Context, userID string, expected uint64, state domain.WalletState) (uint64, error)
}

// DocKey returns the document path of a user's wallet.
func DocKey(appID, userID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/current_state", appID, userID)
}

// document is the stored JSON representation.
type document struct {
	Balance  decimal.Decimal `json:"balance"`
	Shares   decimal.Decimal `json:"shares"`
	UserID   string          `json:"userId"`
	Revision uint64          `json:"revision"`
}

func (d document) state() domain.WalletState {
	return domain.WalletState{Balance: d.Balance, Shares: d.Shares}
}

// backend is a flat key/value space holding encoded documents.
type backend interface {
	get(key string) ([]byte, bool, error)
	put(key string, payload []byte) error
	close() error
}

// DocumentStore implements Store and Versioned over a backend.
type DocumentStore struct {
	appID   string
	initial decimal.Decimal
	backend backend
	hub     *hub

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	closed bool
}

func newDocumentStore(appID string, initial decimal.Decimal, b backend) *DocumentStore {
	if appID == "" {
		appID = DefaultAppID
	}
	if !initial.IsPositive() {
		initial = domain.DefaultInitialBalance
	}
	return &DocumentStore{
		appID:   appID,
		initial: initial,
		backend: b,
		hub:     newHub(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Read returns the stored wallet, creating the default one on first access.
func (s *DocumentStore) Read(ctx context.Context, userID string) (domain.WalletState, error) {
	state, _, err := s.ReadVersioned(ctx, userID)
	return state, err
}

// ReadVersioned returns the stored wallet together with its revision.
func (s *DocumentStore) ReadVersioned(ctx context.Context, userID string) (domain.WalletState, uint64, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return domain.WalletState{}, 0, err
	}
	defer unlock()

	doc, err := s.loadOrInit(userID)
	if err != nil {
		return domain.WalletState{}, 0, err
	}
	return doc.state(), doc.Revision, nil
}

// Write replaces the wallet unconditionally. Concurrent writers race and the
// last one wins.
func (s *DocumentStore) Write(ctx context.Context, userID string, state domain.WalletState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	doc, _, err := s.load(userID)
	if err != nil {
		return err
	}
	_, err = s.store(userID, doc.Revision+1, state)
	return err
}

// CompareAndSwap writes state only if the stored revision equals expected and
// returns the new revision.
func (s *DocumentStore) CompareAndSwap(ctx context.Context, userID string, expected uint64, state domain.WalletState) (uint64, error) {
	if err := state.Validate(); err != nil {
		return 0, err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc, err := s.loadOrInit(userID)
	if err != nil {
		return 0, err
	}
	if doc.Revision != expected {
		return doc.Revision, errors.Wrapf(domain.ErrRevisionMismatch, "expected %d, stored %d", expected, doc.Revision)
	}
	return s.store(userID, expected+1, state)
}

// Subscribe delivers the current wallet and every later change to fn on a
// dedicated goroutine. The subscription also ends when ctx is done.
func (s *DocumentStore) Subscribe(ctx context.Context, userID string, fn func(domain.WalletState)) (Unsubscribe, error) {
	if fn == nil {
		return nil, errors.New("subscriber callback is required")
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.loadOrInit(userID)
	if err != nil {
		unlock()
		return nil, err
	}
	sub := s.hub.add(userID, fn)
	sub.push(doc.state())
	unlock()

	stopCtx := context.AfterFunc(ctx, func() { s.hub.remove(userID, sub) })
	cancel := func() {
		stopCtx()
		s.hub.remove(userID, sub)
	}

	return cancel, nil
}

// Close releases the backend and ends all subscriptions.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.closeAll()
	return s.backend.close()
}

func (s *DocumentStore) lockUser(ctx context.Context, userID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" || strings.Contains(userID, "/") {
		return nil, errors.Wrapf(ErrInvalidUserID, "%q", userID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Wrap(domain.ErrStoreUnavailable, "store closed")
	}
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

// load returns the stored document and whether it exists. Caller holds the user lock.
func (s *DocumentStore) load(userID string) (document, bool, error) {
	payload, ok, err := s.backend.get(DocKey(s.appID, userID))
	if err != nil {
		return document{}, false, errors.Wrapf(domain.ErrStoreUnavailable, "get %s: %v", userID, err)
	}
	if !ok {
		return document{UserID: userID}, false, nil
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return document{}, false, errors.Wrapf(domain.ErrStoreUnavailable, "decode %s: %v", userID, err)
	}
	return doc, true, nil
}

func (s *DocumentStore) loadOrInit(userID string) (document, error) {
	doc, ok, err := s.load(userID)
	if err != nil || ok {
		return doc, err
	}

	doc = document{
		Balance: s.initial,
		Shares:  decimal.Zero,
		UserID:  userID,
	}
	if err := s.put(doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

// store persists state under revision and notifies subscribers.
func (s *DocumentStore) store(userID string, revision uint64, state domain.WalletState) (uint64, error) {
	doc := document{
		Balance:  state.Balance,
		Shares:   state.Shares,
		UserID:   userID,
		Revision: revision,
	}
	if err := s.put(doc); err != nil {
		return 0, err
	}
	s.hub.publish(userID, state)
	return revision, nil
}

func (s *DocumentStore) put(doc document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode wallet document")
	}
	if err := s.backend.put(DocKey(s.appID, doc.UserID), payload); err != nil {
		return errors.Wrapf(domain.ErrStoreUnavailable, "put %s: %v", doc.UserID, err)
	}
	return nil
}
