package walletstore

import (
	"sync"

	"github.com/shopspring/decimal"
)

// NewMemoryStore creates a store that keeps documents in process memory.
func NewMemoryStore(appID string, initialBalance decimal.Decimal) *DocumentStore {
	return newDocumentStore(appID, initialBalance, &memoryBackend{docs: make(map[string][]byte)})
}

type memoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func (m *memoryBackend) get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.docs[key]
	return payload, ok, nil
}

func (m *memoryBackend) put(key string, payload []byte) error {
	m.mu.Lock()
	m.docs[key] = payload
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) close() error {
	return nil
}
