//go:build !windows

package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/metadata"
	storetest "github.com/marmos91/dittoacl/pkg/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a store under t.TempDir(), skipping the test when the
// temporary filesystem has no user xattr support.
func newTestStore(t *testing.T) *LocalMetadataStore {
	t.Helper()

	store, err := NewLocalMetadataStore(context.Background(), LocalMetadataStoreConfig{
		Root: filepath.Join(t.TempDir(), "inodes"),
	})
	if errors.Is(err, metadata.ErrNotSupported) {
		t.Skipf("user xattrs unavailable: %v", err)
	}
	require.NoError(t, err)
	return store
}

func TestLocalMetadataStore(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.Store {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestLocalMetadataStore_CarrierFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ino := storetest.DefaultFileInode()

	require.NoError(t, store.PutInode(ctx, ino))

	info, err := os.Stat(filepath.Join(store.root, ino.ID.String()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestNewLocalMetadataStore_RequiresRoot(t *testing.T) {
	_, err := NewLocalMetadataStore(context.Background(), LocalMetadataStoreConfig{})
	assert.Error(t, err)
}

func TestLocalMetadataStore_ScanSkipsInodeRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ino := storetest.DefaultDirInode()
	require.NoError(t, store.PutInode(ctx, ino))
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "README"), nil, 0o600))

	calls := 0
	require.NoError(t, store.ScanXattrs(ctx, func(uuid.UUID, []string) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls, "an inode without attributes must not be reported")

	require.NoError(t, store.SetXattr(ctx, ino.ID, metadata.XattrACLDefault, []byte{1}))
	require.NoError(t, store.ScanXattrs(ctx, func(id uuid.UUID, names []string) error {
		assert.Equal(t, ino.ID, id)
		assert.Equal(t, []string{metadata.XattrACLDefault}, names)
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}
