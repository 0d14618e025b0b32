package walletstore

import (
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultPebbleDir = "./data/wallets"

// PebbleConfig configures the durable store.
type PebbleConfig struct {
	Dir            string
	AppID          string
	InitialBalance decimal.Decimal
	// FS overrides the filesystem, vfs.NewMem() in tests.
	FS vfs.FS
}

// NewPebbleStore opens a store backed by a pebble database. Every write is synced.
func NewPebbleStore(cfg PebbleConfig) (*DocumentStore, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = defaultPebbleDir
	}

	opts := &pebble.Options{}
	if cfg.FS != nil {
		opts.FS = cfg.FS
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open wallet db at %s", dir)
	}

	return newDocumentStore(cfg.AppID, cfg.InitialBalance, &pebbleBackend{db: db}), nil
}

type pebbleBackend struct {
	db *pebble.DB
}

func (p *pebbleBackend) get(key string) ([]byte, bool, error) {
	val, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	payload := make([]byte, len(val))
	copy(payload, val)
	return payload, true, nil
}

func (p *pebbleBackend) put(key string, payload []byte) error {
	return p.db.Set([]byte(key), payload, pebble.Sync)
}

func (p *pebbleBackend) close() error {
	return p.db.Close()
}
