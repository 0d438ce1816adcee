package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Error Tests
// ============================================================================

func TestStoreError(t *testing.T) {
	t.Run("MatchesSentinel", func(t *testing.T) {
		err := fmt.Errorf("get inode: %w", NewNotFoundError("abc"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrNoData)
	})

	t.Run("UnwrapsBackendError", func(t *testing.T) {
		cause := errors.New("disk on fire")
		err := NewIOError("abc", cause)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, ErrIO)
		assert.Equal(t, "metadata I/O error: abc: disk on fire", err.Error())
	})

	t.Run("Message", func(t *testing.T) {
		err := &StoreError{Code: CodeNoData, Message: "no acl", ID: "x"}
		assert.Equal(t, "no acl: x", err.Error())
		assert.ErrorIs(t, err, ErrNoData)
	})
}

// ============================================================================
// Authorizer Tests
// ============================================================================

func TestUnixAuthorizer(t *testing.T) {
	ino := NewInode(FileTypeRegular, 0o644, 1000, 1000)
	ctx := context.Background()

	tests := []struct {
		name  string
		authz UnixAuthorizer
		auth  *AuthContext
		want  bool
	}{
		{"Owner", UnixAuthorizer{}, NewUnixAuth(ctx, 1000, 50, 0), true},
		{"Stranger", UnixAuthorizer{}, NewUnixAuth(ctx, 1001, 1000, 0), false},
		{"Fowner", UnixAuthorizer{}, NewUnixAuth(ctx, 1001, 1000, CapFowner), true},
		{"RootWithoutOverride", UnixAuthorizer{}, NewUnixAuth(ctx, 0, 0, 0), false},
		{"RootWithOverride", UnixAuthorizer{RootOverride: true}, NewUnixAuth(ctx, 0, 0, 0), true},
		{"Anonymous", UnixAuthorizer{}, &AuthContext{Context: ctx, Identity: &Identity{}}, false},
		{"NoAuth", UnixAuthorizer{RootOverride: true}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.authz.IsOwnerOrCapable(tt.auth, ino))
		})
	}
}

// ============================================================================
// Inode Tests
// ============================================================================

func TestNewInode(t *testing.T) {
	dir := NewInode(FileTypeDirectory, 0o40755, 1, 2)
	assert.Equal(t, ModeDirectory|0o755, dir.Mode)
	assert.True(t, dir.IsDir())
	assert.False(t, dir.IsSymlink())
	assert.Equal(t, uint32(0o755), dir.Perm())

	link := NewInode(FileTypeSymlink, 0o777, 1, 2)
	assert.True(t, link.IsSymlink())
	assert.NotEqual(t, dir.ID, link.ID)

	before := dir.Ctime
	dir.Touch()
	assert.False(t, dir.Ctime.Before(before))

	c := dir.Clone()
	c.Mode = 0
	assert.Equal(t, ModeDirectory|0o755, dir.Mode)
}

func TestParseFileType(t *testing.T) {
	typ, ok := ParseFileType("dir")
	assert.True(t, ok)
	assert.Equal(t, FileTypeDirectory, typ)

	_, ok = ParseFileType("widget")
	assert.False(t, ok)
}

// ============================================================================
// Mount Option Tests
// ============================================================================

func TestParseMountOptions(t *testing.T) {
	opts, err := ParseMountOptions("acl")
	require.NoError(t, err)
	assert.True(t, opts.ACLEnabled())
	assert.Equal(t, "acl", opts.String())

	opts, err = ParseMountOptions("acl,noacl")
	require.NoError(t, err)
	assert.False(t, opts.ACLEnabled())

	opts, err = ParseMountOptions("")
	require.NoError(t, err)
	assert.False(t, opts.ACLEnabled())

	_, err = ParseMountOptions("acl,turbo")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// ============================================================================
// Lock Tests
// ============================================================================

func TestInodeLocks(t *testing.T) {
	var locks InodeLocks
	id := uuid.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(id)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, counter)
}
