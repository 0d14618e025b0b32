package walletstore

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

func TestPebbleStore_PersistsAcrossReopen(t *testing.T) {
	fs := vfs.NewMem()
	cfg := PebbleConfig{Dir: "wallets", AppID: "app", InitialBalance: decimal.NewFromInt(10000), FS: fs}
	ctx := context.Background()

	s, err := NewPebbleStore(cfg)
	require.NoError(t, err)

	initial, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, initial.Equal(domain.NewWalletState(decimal.NewFromInt(10000))))

	require.NoError(t, s.Write(ctx, "alice", state(9000, 10)))
	require.NoError(t, s.Close())

	reopened, err := NewPebbleStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, rev, err := reopened.ReadVersioned(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Equal(state(9000, 10)))
	assert.Equal(t, uint64(1), rev)
}

func TestPebbleStore_SubscribeSeesWrites(t *testing.T) {
	s, err := NewPebbleStore(PebbleConfig{Dir: "wallets", FS: vfs.NewMem()})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	var r recorder
	unsub, err := s.Subscribe(ctx, "bob", r.fn)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Write(ctx, "bob", state(9000, 10)))

	got := r.waitFor(t, 2)
	assert.True(t, got[0].Equal(domain.NewWalletState(domain.DefaultInitialBalance)))
	assert.True(t, got[1].Equal(state(9000, 10)))
}
