package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// MemoryMetadataStore implements metadata.Store using in-memory maps.
//
// It is suitable for testing and for ephemeral filesystems where persistence
// is not required.
//
// Thread Safety:
// All operations are protected by a single read-write mutex (mu), making the
// store safe for concurrent access from multiple goroutines.
//
// Storage Model:
//
//  1. Inodes (inodes):
//     Maps inode IDs to inode metadata (type, mode, owner, timestamps).
//
//  2. Extended attributes (xattrs):
//     Maps inode IDs to a map of attribute name to value. ACLs are stored
//     here in their binary encoding.
//
// Values are copied on the way in and on the way out, so callers never share
// memory with the store.
type MemoryMetadataStore struct {
	mu     sync.RWMutex
	inodes map[uuid.UUID]*metadata.Inode
	xattrs map[uuid.UUID]map[string][]byte
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		inodes: make(map[uuid.UUID]*metadata.Inode),
		xattrs: make(map[uuid.UUID]map[string][]byte),
	}
}

// GetInode implements metadata.InodeStore.
func (s *MemoryMetadataStore) GetInode(ctx context.Context, id uuid.UUID) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ino, ok := s.inodes[id]
	if !ok {
		return nil, metadata.NewNotFoundError(id.String())
	}
	return ino.Clone(), nil
}

// PutInode implements metadata.InodeStore.
func (s *MemoryMetadataStore) PutInode(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inodes[ino.ID]; ok {
		return &metadata.StoreError{Code: metadata.CodeAlreadyExists, ID: ino.ID.String()}
	}
	s.inodes[ino.ID] = ino.Clone()
	return nil
}

// MarkDirty implements metadata.InodeStore.
func (s *MemoryMetadataStore) MarkDirty(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inodes[ino.ID] = ino.Clone()
	return nil
}

// GetXattr implements metadata.AttributeStore.
func (s *MemoryMetadataStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.xattrs[id][name]
	if !ok {
		return nil, metadata.ErrNoData
	}
	return append([]byte(nil), value...), nil
}

// SetXattr implements metadata.AttributeStore.
func (s *MemoryMetadataStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := s.xattrs[id]
	if value == nil {
		delete(attrs, name)
		if len(attrs) == 0 {
			delete(s.xattrs, id)
		}
		return nil
	}

	if attrs == nil {
		attrs = make(map[string][]byte)
		s.xattrs[id] = attrs
	}
	attrs[name] = append([]byte{}, value...)
	return nil
}

// ScanXattrs implements metadata.AttributeScanner. It works on a snapshot
// taken when the scan starts.
func (s *MemoryMetadataStore) ScanXattrs(ctx context.Context, fn func(id uuid.UUID, names []string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := make(map[uuid.UUID][]string, len(s.xattrs))
	for id, attrs := range s.xattrs {
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		snapshot[id] = names
	}
	s.mu.RUnlock()

	for id, names := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, names); err != nil {
			return err
		}
	}
	return nil
}

// Close implements metadata.Store. It is a no-op.
func (s *MemoryMetadataStore) Close() error {
	return nil
}
