package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunScanTests(test *testing.T) {
	test.Run("Scan_Groups", suite.TestScanXattrs_Groups)
	test.Run("Scan_Empty", suite.TestScanXattrs_Empty)
	test.Run("Scan_Stops", suite.TestScanXattrs_Stops)
	test.Run("Scan_Mutates", suite.TestScanXattrs_Mutates)
}

func (suite *StoreTestSuite) scanner(test *testing.T) (metadata.Store, metadata.AttributeScanner) {
	store := suite.NewStore(test)
	scanner, ok := store.(metadata.AttributeScanner)
	if !ok {
		test.Skip("store cannot enumerate attributes")
	}
	return store, scanner
}

// TestScanXattrs_Groups verifies every inode is reported once with all of
// its attribute names.
func (suite *StoreTestSuite) TestScanXattrs_Groups(test *testing.T) {
	store, scanner := suite.scanner(test)
	ctx := context.Background()
	dir, file := uuid.New(), uuid.New()

	require.NoError(test, store.SetXattr(ctx, dir, metadata.XattrACLAccess, []byte{1}))
	require.NoError(test, store.SetXattr(ctx, dir, metadata.XattrACLDefault, []byte{2}))
	require.NoError(test, store.SetXattr(ctx, file, metadata.XattrACLAccess, []byte{3}))

	seen := make(map[uuid.UUID][]string)
	require.NoError(test, scanner.ScanXattrs(ctx, func(id uuid.UUID, names []string) error {
		_, dup := seen[id]
		assert.False(test, dup, "inode %s reported twice", id)
		seen[id] = names
		return nil
	}))

	require.Len(test, seen, 2)
	assert.ElementsMatch(test, []string{metadata.XattrACLAccess, metadata.XattrACLDefault}, seen[dir])
	assert.Equal(test, []string{metadata.XattrACLAccess}, seen[file])
}

// TestScanXattrs_Empty verifies removed attributes are not reported.
func (suite *StoreTestSuite) TestScanXattrs_Empty(test *testing.T) {
	store, scanner := suite.scanner(test)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, []byte{1}))
	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, nil))

	calls := 0
	require.NoError(test, scanner.ScanXattrs(ctx, func(uuid.UUID, []string) error {
		calls++
		return nil
	}))
	assert.Zero(test, calls)
}

// TestScanXattrs_Stops verifies the callback's error ends the scan.
func (suite *StoreTestSuite) TestScanXattrs_Stops(test *testing.T) {
	store, scanner := suite.scanner(test)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(test, store.SetXattr(ctx, uuid.New(), metadata.XattrACLAccess, []byte{1}))
	}

	stop := errors.New("stop")
	calls := 0
	err := scanner.ScanXattrs(ctx, func(uuid.UUID, []string) error {
		calls++
		return stop
	})

	assert.ErrorIs(test, err, stop)
	assert.Equal(test, 1, calls)
}

// TestScanXattrs_Mutates verifies the callback may write to the store.
func (suite *StoreTestSuite) TestScanXattrs_Mutates(test *testing.T) {
	store, scanner := suite.scanner(test)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLDefault, []byte{1}))

	require.NoError(test, scanner.ScanXattrs(ctx, func(id uuid.UUID, names []string) error {
		for _, name := range names {
			if err := store.SetXattr(ctx, id, name, nil); err != nil {
				return err
			}
		}
		return nil
	}))

	_, err := store.GetXattr(ctx, id, metadata.XattrACLDefault)
	assert.ErrorIs(test, err, metadata.ErrNoData)
}
