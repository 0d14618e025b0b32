// Package tradelog keeps the append-only testnet trade history, durable in a
// gowal write-ahead log or in memory when no directory is configured.
package tradelog

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const (
	segmentThreshold = 1000
	// records are never evicted; ledger replay reads the whole history
	maxSegments = 0
	keyPrefix   = "trade_"
)

// Log stores TradeRecords in append order. Indexes start at 1.
type Log struct {
	mu     sync.RWMutex
	wal    *gowal.Wal
	mem    []domain.TradeRecordEntry
	closed bool
}

// Open returns a WAL-backed log under dir, or a memory log when dir is empty.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return NewMemory(), nil
	}
	return openWAL(dir, segmentThreshold)
}

func openWAL(dir string, threshold int) (*Log, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "trades_",
		SegmentThreshold: threshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade log WAL")
	}

	return &Log{wal: wal}, nil
}

// NewMemory creates a log that lives only as long as the process.
func NewMemory() *Log {
	return &Log{}
}

// Append stores rec and returns its index.
func (l *Log) Append(rec domain.TradeRecord) (uint64, error) {
	if rec.Symbol == "" {
		return 0, errors.New("trade record symbol is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.wal == nil {
		idx := uint64(len(l.mem)) + 1
		l.mem = append(l.mem, domain.TradeRecordEntry{Index: idx, Record: rec})
		return idx, nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, errors.Wrap(err, "marshal trade record")
	}

	nextIndex := l.wal.CurrentIndex() + 1
	if err := l.wal.Write(nextIndex, keyPrefix+rec.Symbol, payload); err != nil {
		return 0, errors.Wrap(err, "write trade record")
	}
	return nextIndex, nil
}

// RecordsAfter returns every record stored after index, in order.
func (l *Log) RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.wal == nil {
		if index >= uint64(len(l.mem)) {
			return nil, nil
		}
		out := make([]domain.TradeRecordEntry, len(l.mem)-int(index))
		copy(out, l.mem[index:])
		return out, nil
	}

	current := l.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.TradeRecordEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := l.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var rec domain.TradeRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode trade record %d", idx)
		}
		entries = append(entries, domain.TradeRecordEntry{Index: idx, Record: rec})
	}

	return entries, nil
}

// History returns the records of one symbol, oldest first.
func (l *Log) History(symbol string) ([]domain.TradeRecord, error) {
	entries, err := l.RecordsAfter(0)
	if err != nil {
		return nil, err
	}

	out := make([]domain.TradeRecord, 0)
	for _, e := range entries {
		if e.Record.Symbol == symbol {
			out = append(out, e.Record)
		}
	}
	return out, nil
}

// CurrentIndex returns the index of the last stored record.
func (l *Log) CurrentIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.wal == nil {
		return uint64(len(l.mem))
	}
	return l.wal.CurrentIndex()
}

// Close closes the underlying WAL. Later calls are no-ops.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.wal == nil || l.closed {
		return nil
	}
	l.closed = true
	return l.wal.Close()
}
