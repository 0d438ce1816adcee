package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunXattrTests(test *testing.T) {
	test.Run("Get_Missing", suite.TestGetXattr_Missing)
	test.Run("Set_Get", suite.TestSetXattr_Get)
	test.Run("Set_Overwrite", suite.TestSetXattr_Overwrite)
	test.Run("Set_NilDeletes", suite.TestSetXattr_NilDeletes)
	test.Run("Set_DeleteMissing", suite.TestSetXattr_DeleteMissing)
	test.Run("Names_Independent", suite.TestXattr_NamesIndependent)
	test.Run("Get_ReturnsCopy", suite.TestGetXattr_ReturnsCopy)
}

// TestGetXattr_Missing verifies that an absent attribute reports ErrNoData.
func (suite *StoreTestSuite) TestGetXattr_Missing(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	_, err := store.GetXattr(ctx, uuid.New(), metadata.XattrACLAccess)

	assert.ErrorIs(test, err, metadata.ErrNoData)
}

// TestSetXattr_Get verifies a stored value is returned unchanged.
func (suite *StoreTestSuite) TestSetXattr_Get(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	id := uuid.New()
	value := []byte{0, 0, 0, 1, 1, 0, 6, 0}

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, value))

	got, err := store.GetXattr(ctx, id, metadata.XattrACLAccess)
	require.NoError(test, err)
	assert.Equal(test, value, got)
}

// TestSetXattr_Overwrite verifies a second write replaces the first.
func (suite *StoreTestSuite) TestSetXattr_Overwrite(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLDefault, []byte("first value")))
	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLDefault, []byte("2nd")))

	got, err := store.GetXattr(ctx, id, metadata.XattrACLDefault)
	require.NoError(test, err)
	assert.Equal(test, []byte("2nd"), got)
}

// TestSetXattr_NilDeletes verifies a nil value removes the attribute.
func (suite *StoreTestSuite) TestSetXattr_NilDeletes(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, []byte{1, 2, 3, 4}))
	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, nil))

	_, err := store.GetXattr(ctx, id, metadata.XattrACLAccess)
	assert.ErrorIs(test, err, metadata.ErrNoData)
}

// TestSetXattr_DeleteMissing verifies that removing an absent attribute succeeds.
func (suite *StoreTestSuite) TestSetXattr_DeleteMissing(test *testing.T) {
	store := suite.NewStore(test)

	err := store.SetXattr(context.Background(), uuid.New(), metadata.XattrACLDefault, nil)

	assert.NoError(test, err)
}

// TestXattr_NamesIndependent verifies access and default values do not alias.
func (suite *StoreTestSuite) TestXattr_NamesIndependent(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	id := uuid.New()
	other := uuid.New()

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, []byte("access")))

	_, err := store.GetXattr(ctx, id, metadata.XattrACLDefault)
	assert.ErrorIs(test, err, metadata.ErrNoData)

	_, err = store.GetXattr(ctx, other, metadata.XattrACLAccess)
	assert.ErrorIs(test, err, metadata.ErrNoData)
}

// TestGetXattr_ReturnsCopy verifies callers cannot mutate stored values.
func (suite *StoreTestSuite) TestGetXattr_ReturnsCopy(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()
	id := uuid.New()
	value := []byte{9, 9, 9, 9}

	require.NoError(test, store.SetXattr(ctx, id, metadata.XattrACLAccess, value))
	value[0] = 0

	got, err := store.GetXattr(ctx, id, metadata.XattrACLAccess)
	require.NoError(test, err)
	got[1] = 0

	again, err := store.GetXattr(ctx, id, metadata.XattrACLAccess)
	require.NoError(test, err)
	assert.Equal(test, []byte{9, 9, 9, 9}, again)
}
