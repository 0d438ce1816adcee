package xattr

import (
	"context"
	"testing"

	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/acl/cache"
	"github.com/marmos91/dittoacl/pkg/aclfs"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var aclOn = metadata.MountOptions{Flags: metadata.POSIXACL}

// stubAuthorizer answers every ownership check with allow.
type stubAuthorizer struct {
	allow bool
	calls int
}

func (s *stubAuthorizer) IsOwnerOrCapable(*metadata.AuthContext, *metadata.Inode) bool {
	s.calls++
	return s.allow
}

type fixture struct {
	store   *memory.MemoryMetadataStore
	manager *aclfs.Manager
	authz   *stubAuthorizer
	access  *Handler
	def     *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemoryMetadataStore()
	m := aclfs.NewManager(store, store, identity.InitNamespace(), cache.New(64), nil)
	authz := &stubAuthorizer{allow: true}
	return &fixture{
		store:   store,
		manager: m,
		authz:   authz,
		access:  NewAccessHandler(m, authz),
		def:     NewDefaultHandler(m, authz),
	}
}

func (f *fixture) inode(t *testing.T, typ metadata.FileType, perm uint32) *metadata.Inode {
	t.Helper()
	ino := metadata.NewInode(typ, perm, 1000, 1000)
	require.NoError(t, f.store.PutInode(context.Background(), ino))
	return ino
}

func xattrValue(t *testing.T, text string) []byte {
	t.Helper()
	a, err := acl.Parse(text)
	require.NoError(t, err)
	buf := make([]byte, acl.XattrSize(a))
	_, err = acl.ToXattr(a, identity.InitNamespace(), buf)
	require.NoError(t, err)
	return buf
}

func request(opts metadata.MountOptions, ino *metadata.Inode) Request {
	return Request{Opts: opts, Auth: metadata.NewUnixAuth(context.Background(), 1000, 1000, 0), Inode: ino}
}

// ============================================================================
// List Tests
// ============================================================================

func TestHandlerList(t *testing.T) {
	f := newFixture(t)

	t.Run("SizeQuery", func(t *testing.T) {
		assert.Equal(t, len("system.posix_acl_access")+1, f.access.List(aclOn, nil))
	})

	t.Run("CopiesWhenLargeEnough", func(t *testing.T) {
		buf := make([]byte, 64)
		n := f.def.List(aclOn, buf)
		assert.Equal(t, "system.posix_acl_default\x00", string(buf[:n]))
	})

	t.Run("ShortBufferUntouched", func(t *testing.T) {
		buf := make([]byte, 4)
		n := f.access.List(aclOn, buf)
		assert.Equal(t, len("system.posix_acl_access")+1, n)
		assert.Equal(t, []byte{0, 0, 0, 0}, buf)
	})

	t.Run("Disabled", func(t *testing.T) {
		assert.Equal(t, 0, f.access.List(metadata.MountOptions{}, make([]byte, 64)))
	})
}

// ============================================================================
// Get Tests
// ============================================================================

func TestHandlerGet(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)
		value := xattrValue(t, "u::rw-,u:42:r--,g::r--,m::r--,o::r--")
		require.NoError(t, f.access.Set(ctx, request(aclOn, file), "", value))

		size, err := f.access.Get(ctx, request(aclOn, file), "", nil)
		require.NoError(t, err)
		assert.Equal(t, len(value), size)

		size, err = f.access.Get(ctx, request(aclOn, file), "", []byte{})
		require.NoError(t, err)
		assert.Equal(t, len(value), size)

		buf := make([]byte, size)
		n, err := f.access.Get(ctx, request(aclOn, file), "", buf)
		require.NoError(t, err)
		assert.Equal(t, value, buf[:n])
	})

	t.Run("ShortBuffer", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)
		require.NoError(t, f.access.Set(ctx, request(aclOn, file), "", xattrValue(t, "u::rw-,u:42:r--,g::r--,m::r--,o::r--")))

		_, err := f.access.Get(ctx, request(aclOn, file), "", make([]byte, 8))
		assert.ErrorIs(t, err, acl.ErrRange)
	})

	t.Run("Absent", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		_, err := f.access.Get(ctx, request(aclOn, file), "", nil)
		assert.ErrorIs(t, err, acl.ErrNoData)
		assert.ErrorIs(t, err, metadata.ErrNoData)
	})

	t.Run("Suffix", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		_, err := f.access.Get(ctx, request(aclOn, file), "x", nil)
		assert.ErrorIs(t, err, acl.ErrInvalid)
	})

	t.Run("Disabled", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		_, err := f.access.Get(ctx, request(metadata.MountOptions{}, file), "", nil)
		assert.ErrorIs(t, err, acl.ErrUnsupported)
	})
}

// ============================================================================
// Set Tests
// ============================================================================

func TestHandlerSet(t *testing.T) {
	ctx := context.Background()

	t.Run("UpdatesMode", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		require.NoError(t, f.access.Set(ctx, request(aclOn, file), "", xattrValue(t, "u::rwx,g::---,o::---")))
		assert.Equal(t, metadata.ModeRegular|0o700, file.Mode)
		assert.Equal(t, 1, f.authz.calls)
	})

	t.Run("NotOwner", func(t *testing.T) {
		f := newFixture(t)
		f.authz.allow = false
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		err := f.access.Set(ctx, request(aclOn, file), "", xattrValue(t, "u::rwx,g::---,o::---"))
		assert.ErrorIs(t, err, acl.ErrPermission)
		assert.Equal(t, metadata.ModeRegular|0o644, file.Mode)
	})

	t.Run("NilRemoves", func(t *testing.T) {
		f := newFixture(t)
		dir := f.inode(t, metadata.FileTypeDirectory, 0o755)
		require.NoError(t, f.def.Set(ctx, request(aclOn, dir), "", xattrValue(t, "u::rwx,g::r-x,o::r-x")))

		require.NoError(t, f.def.Set(ctx, request(aclOn, dir), "", nil))
		_, err := f.def.Get(ctx, request(aclOn, dir), "", nil)
		assert.ErrorIs(t, err, acl.ErrNoData)
	})

	t.Run("InvalidStructure", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		// named entry without a mask
		err := f.access.Set(ctx, request(aclOn, file), "", xattrValue(t, "u::rwx,u:5:r--,g::r--,o::---"))
		assert.ErrorIs(t, err, acl.ErrValidation)
	})

	t.Run("BadVersion", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)
		value := xattrValue(t, "u::rwx,g::---,o::---")
		value[0] = 9

		err := f.access.Set(ctx, request(aclOn, file), "", value)
		assert.ErrorIs(t, err, acl.ErrVersion)
	})

	t.Run("DefaultOnFile", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		err := f.def.Set(ctx, request(aclOn, file), "", xattrValue(t, "u::rwx,g::r-x,o::r-x"))
		assert.ErrorIs(t, err, acl.ErrPermission)
	})

	t.Run("Symlink", func(t *testing.T) {
		f := newFixture(t)
		link := f.inode(t, metadata.FileTypeSymlink, 0o777)

		err := f.access.Set(ctx, request(aclOn, link), "", xattrValue(t, "u::rwx,g::rwx,o::rwx"))
		assert.ErrorIs(t, err, acl.ErrUnsupported)
	})

	t.Run("Disabled", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		err := f.access.Set(ctx, request(metadata.MountOptions{}, file), "", xattrValue(t, "u::rwx,g::---,o::---"))
		assert.ErrorIs(t, err, acl.ErrUnsupported)
		assert.Equal(t, 0, f.authz.calls)
	})

	t.Run("Suffix", func(t *testing.T) {
		f := newFixture(t)
		file := f.inode(t, metadata.FileTypeRegular, 0o644)

		err := f.access.Set(ctx, request(aclOn, file), "_x", nil)
		assert.ErrorIs(t, err, acl.ErrInvalid)
	})

	t.Run("OwnerCheckWithUnixAuthorizer", func(t *testing.T) {
		f := newFixture(t)
		h := NewAccessHandler(f.manager, metadata.UnixAuthorizer{})
		file := f.inode(t, metadata.FileTypeRegular, 0o644)
		value := xattrValue(t, "u::rw-,g::r--,o::---")

		stranger := Request{Opts: aclOn, Auth: metadata.NewUnixAuth(ctx, 2000, 2000, 0), Inode: file}
		assert.ErrorIs(t, h.Set(ctx, stranger, "", value), acl.ErrPermission)

		privileged := Request{Opts: aclOn, Auth: metadata.NewUnixAuth(ctx, 2000, 2000, metadata.CapFowner), Inode: file}
		require.NoError(t, h.Set(ctx, privileged, "", value))
		assert.Equal(t, metadata.ModeRegular|0o640, file.Mode)
	})
}
