package datastore_test

import (
	"context"
	"testing"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/datastore"
	"github.com/xraph/escrow/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store {
		return datastore.New(ds_sync.MutexWrap(ds.NewMapDatastore()))
	})
}

func TestMigrateStampsVersion(t *testing.T) {
	ctx := context.Background()
	backing := ds_sync.MutexWrap(ds.NewMapDatastore())
	s := datastore.New(backing)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))

	v, err := backing.Get(ctx, ds.NewKey("/escrow/meta/version"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	require.NoError(t, backing.Put(ctx, ds.NewKey("/escrow/meta/version"), []byte("9")))
	require.ErrorIs(t, s.Migrate(ctx), escrow.ErrMigrationFailed)
}
