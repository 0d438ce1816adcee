package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittoacl/pkg/metadata"
	storetest "github.com/marmos91/dittoacl/pkg/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerMetadataStore {
	t.Helper()

	store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{
		DBPath:           t.TempDir(),
		BlockCacheSizeMB: 8,
		IndexCacheSizeMB: 8,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerMetadataStore(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.Store {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestBadgerMetadataStore_InMemory(t *testing.T) {
	store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ino := storetest.DefaultDirInode()
	require.NoError(t, store.PutInode(ctx, ino))

	got, err := store.GetInode(ctx, ino.ID)
	require.NoError(t, err)
	assert.Equal(t, ino.ID, got.ID)
}

func TestBadgerMetadataStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ino := storetest.DefaultDirInode()

	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, store.PutInode(ctx, ino))
	require.NoError(t, store.SetXattr(ctx, ino.ID, metadata.XattrACLDefault, []byte{0, 0, 0, 1}))
	require.NoError(t, store.Close())

	store, err = NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetInode(ctx, ino.ID)
	require.NoError(t, err)
	assert.Equal(t, ino.Mode, got.Mode)

	value, err := store.GetXattr(ctx, ino.ID, metadata.XattrACLDefault)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1}, value)
}

func TestParseXattrKey(t *testing.T) {
	ino := storetest.DefaultFileInode()

	id, name, ok := parseXattrKey(keyXattr(ino.ID, metadata.XattrACLAccess))
	require.True(t, ok)
	assert.Equal(t, ino.ID, id)
	assert.Equal(t, metadata.XattrACLAccess, name)

	for _, key := range []string{"x:", "x:not-a-uuid:name", "x:" + ino.ID.String() + ":"} {
		_, _, ok := parseXattrKey([]byte(key))
		assert.False(t, ok, "key %q", key)
	}
}
