package testing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunInodeTests(test *testing.T) {
	test.Run("Put_Get", suite.TestPutInode_Get)
	test.Run("Put_Duplicate", suite.TestPutInode_Duplicate)
	test.Run("Get_Missing", suite.TestGetInode_Missing)
	test.Run("MarkDirty_Persists", suite.TestMarkDirty_Persists)
	test.Run("Get_ReturnsCopy", suite.TestGetInode_ReturnsCopy)
}

// TestPutInode_Get verifies a stored inode round-trips.
func (suite *StoreTestSuite) TestPutInode_Get(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	ino := DefaultDirInode()

	require.NoError(test, store.PutInode(ctx, ino))

	got, err := store.GetInode(ctx, ino.ID)
	require.NoError(test, err)
	assert.Equal(test, ino.ID, got.ID)
	assert.Equal(test, ino.Mode, got.Mode)
	assert.Equal(test, ino.UID, got.UID)
	assert.Equal(test, ino.GID, got.GID)
	assert.True(test, got.IsDir())
	assert.True(test, ino.Ctime.Equal(got.Ctime))
}

// TestPutInode_Duplicate verifies that creating an existing id fails.
func (suite *StoreTestSuite) TestPutInode_Duplicate(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	ino := DefaultFileInode()

	require.NoError(test, store.PutInode(ctx, ino))

	err := store.PutInode(ctx, ino)
	assert.ErrorIs(test, err, metadata.ErrAlreadyExists)
}

// TestGetInode_Missing verifies that an unknown id reports ErrNotFound.
func (suite *StoreTestSuite) TestGetInode_Missing(test *testing.T) {
	store := suite.NewStore(test)

	_, err := store.GetInode(context.Background(), uuid.New())

	assert.ErrorIs(test, err, metadata.ErrNotFound)
}

// TestMarkDirty_Persists verifies a modified inode is written through.
func (suite *StoreTestSuite) TestMarkDirty_Persists(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	ino := DefaultFileInode()
	require.NoError(test, store.PutInode(ctx, ino))

	ino.Mode = metadata.ModeRegular | 0o600
	ino.Ctime = ino.Ctime.Add(time.Second)
	require.NoError(test, store.MarkDirty(ctx, ino))

	got, err := store.GetInode(ctx, ino.ID)
	require.NoError(test, err)
	assert.Equal(test, metadata.ModeRegular|0o600, got.Mode)
	assert.True(test, ino.Ctime.Equal(got.Ctime))
}

// TestGetInode_ReturnsCopy verifies callers cannot mutate the stored inode.
func (suite *StoreTestSuite) TestGetInode_ReturnsCopy(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	ino := DefaultFileInode()
	require.NoError(test, store.PutInode(ctx, ino))

	got, err := store.GetInode(ctx, ino.ID)
	require.NoError(test, err)
	got.Mode = 0

	again, err := store.GetInode(ctx, ino.ID)
	require.NoError(test, err)
	assert.Equal(test, ino.Mode, again.Mode)
}
