package aclfs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/acl/cache"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metadata/memory"
	"github.com/stretchr/testify/require"
)

var aclOn = metadata.MountOptions{Flags: metadata.POSIXACL}

// countingStore wraps the memory store, counting attribute calls and
// optionally failing them.
type countingStore struct {
	*memory.MemoryMetadataStore

	mu       sync.Mutex
	reads    int
	writes   int
	dirty    int
	readErr  error
	writeErr error
	dirtyErr error

	// afterRead, if set, runs once an attribute has been read and before the
	// result is returned
	afterRead func()
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryMetadataStore: memory.NewMemoryMetadataStore()}
}

func (s *countingStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	s.mu.Lock()
	s.reads++
	err := s.readErr
	hook := s.afterRead
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	value, err := s.MemoryMetadataStore.GetXattr(ctx, id, name)
	if hook != nil {
		hook()
	}
	return value, err
}

func (s *countingStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	s.mu.Lock()
	s.writes++
	err := s.writeErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryMetadataStore.SetXattr(ctx, id, name, value)
}

func (s *countingStore) MarkDirty(ctx context.Context, ino *metadata.Inode) error {
	s.mu.Lock()
	s.dirty++
	err := s.dirtyErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryMetadataStore.MarkDirty(ctx, ino)
}

func (s *countingStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// raw returns the stored attribute bytes, bypassing the counters.
func (s *countingStore) raw(t *testing.T, id uuid.UUID, name string) ([]byte, bool) {
	t.Helper()
	value, err := s.MemoryMetadataStore.GetXattr(context.Background(), id, name)
	if errors.Is(err, metadata.ErrNoData) {
		return nil, false
	}
	require.NoError(t, err)
	return value, true
}

func newTestManager(t *testing.T) (*Manager, *countingStore) {
	t.Helper()
	store := newCountingStore()
	return NewManager(store, store, identity.InitNamespace(), cache.New(64), nil), store
}

func mustParse(t *testing.T, text string) *acl.ACL {
	t.Helper()
	a, err := acl.Parse(text)
	require.NoError(t, err)
	return a
}

// newInode creates and stores an inode.
func newInode(t *testing.T, store *countingStore, typ metadata.FileType, perm uint32) *metadata.Inode {
	t.Helper()
	ino := metadata.NewInode(typ, perm, 1000, 1000)
	require.NoError(t, store.PutInode(context.Background(), ino))
	return ino
}
