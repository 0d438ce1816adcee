package testing

import (
	"testing"

	"github.com/marmos91/dittoacl/pkg/metadata"
)

// StoreTestSuite is a test suite for metadata.Store implementations.
// It tests the interface contract, not implementation details, making it
// reusable across the memory, badger, s3 and local backends.
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh Store instance
	// for each test. This ensures test isolation.
	NewStore func(t *testing.T) metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("Xattr", suite.RunXattrTests)
	test.Run("Inode", suite.RunInodeTests)
	test.Run("Scan", suite.RunScanTests)
}
