// Package aclfs binds the pure ACL rules of pkg/acl to a filesystem: it
// reads and writes ACLs through a metadata.AttributeStore, keeps decoded
// ACLs in a per-inode cache, folds access ACLs into inode modes, initialises
// the ACLs of new inodes from their parent's default ACL and keeps ACLs in
// step with chmod.
//
// Locking: callers hold the per-inode lock (see metadata.InodeLocks) across
// Set, InitACL and Chmod. Get may run concurrently with anything.
package aclfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/acl/cache"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metrics"
)

// Manager is the ACL store adapter.
type Manager struct {
	attrs   metadata.AttributeStore
	inodes  metadata.InodeStore
	mapper  identity.Mapper
	cache   *cache.Cache
	metrics metrics.ACLMetrics
}

// NewManager creates a Manager.
//
// Parameters:
//   - attrs: where encoded ACLs are persisted
//   - inodes: receives mode and ctime updates caused by access ACL writes
//   - mapper: resolves the identifiers of named entries
//   - c: decoded ACL cache; nil disables caching
//   - m: metrics; nil disables collection
func NewManager(attrs metadata.AttributeStore, inodes metadata.InodeStore, mapper identity.Mapper, c *cache.Cache, m metrics.ACLMetrics) *Manager {
	return &Manager{
		attrs:   attrs,
		inodes:  inodes,
		mapper:  mapper,
		cache:   c,
		metrics: m,
	}
}

// Mapper returns the identity mapper used to encode and decode ACLs.
func (m *Manager) Mapper() identity.Mapper {
	return m.mapper
}

// XattrName returns the attribute name an ACL type is stored under.
func XattrName(t acl.Type) (string, error) {
	switch t {
	case acl.TypeAccess:
		return metadata.XattrACLAccess, nil
	case acl.TypeDefault:
		return metadata.XattrACLDefault, nil
	default:
		return "", fmt.Errorf("%w: ACL type %d", acl.ErrInvalid, t)
	}
}

func (m *Manager) record(op string, t acl.Type, start time.Time, err error) {
	if m.metrics != nil {
		m.metrics.RecordOperation(op, t.String(), time.Since(start), err)
	}
}

// Get returns the ACL of type t for ino, or nil when the inode has none.
//
// With ACL support disabled on the mount it always returns nil. Otherwise
// the cache is consulted first; on a miss the attribute is read, decoded
// and the outcome (including "no ACL") cached, unless a Set completed while
// the read was in flight. Store and decode failures are returned without
// caching anything.
func (m *Manager) Get(ctx context.Context, opts metadata.MountOptions, ino *metadata.Inode, t acl.Type) (a *acl.ACL, err error) {
	if !opts.ACLEnabled() {
		return nil, nil
	}

	start := time.Now()
	defer func() { m.record("get", t, start, err) }()

	name, err := XattrName(t)
	if err != nil {
		return nil, err
	}

	cached, state := m.cache.Lookup(ino.ID, t)
	if m.metrics != nil {
		m.metrics.RecordCacheLookup(state.String())
	}
	switch state {
	case cache.Cached:
		return cached, nil
	case cache.Absent:
		return nil, nil
	}

	// a Set finishing while the store is read supersedes this fill
	tok := m.cache.Begin(ino.ID, t)

	value, err := m.attrs.GetXattr(ctx, ino.ID, name)
	switch {
	case errors.Is(err, metadata.ErrNoData), errors.Is(err, metadata.ErrNotSupported):
		value = nil
	case err != nil:
		m.cache.Abort(ino.ID, t, tok)
		return nil, fmt.Errorf("read %s ACL of %s: %w", t, ino.ID, err)
	}

	a, err = acl.Decode(value, m.mapper)
	if err != nil {
		m.cache.Abort(ino.ID, t, tok)
		logger.Warn("Corrupt %s ACL on inode %s: %v", t, ino.ID, err)
		if m.metrics != nil {
			m.metrics.RecordCorrupt(t.String())
		}
		return nil, fmt.Errorf("decode %s ACL of %s: %w", t, ino.ID, err)
	}

	logger.Debug("Loaded %s ACL of %s from store (%d entries)", t, ino.ID, a.Count())
	if !m.cache.Commit(ino.ID, t, tok, a) {
		logger.Debug("Discarded %s ACL fill of %s: slot changed during the read", t, ino.ID)
	}
	return a, nil
}

// Set stores a as the ACL of type t for ino. A nil or empty ACL removes it.
//
// Rules:
//   - symlinks never carry ACLs: ErrUnsupported
//   - with ACL support disabled the call is a successful no-op
//   - an access ACL is folded into ino.Mode first; the inode's ctime is
//     touched and it is marked dirty. If the ACL is fully expressed by the
//     new mode nothing is stored and any previous attribute is removed
//   - a default ACL on a non-directory fails with ErrPermission, removing
//     it is a no-op
//
// The cache is updated with exactly what was written, and only once the
// write succeeded.
func (m *Manager) Set(ctx context.Context, opts metadata.MountOptions, ino *metadata.Inode, t acl.Type, a *acl.ACL) (err error) {
	if ino.IsSymlink() {
		return fmt.Errorf("set %s ACL on symlink %s: %w", t, ino.ID, acl.ErrUnsupported)
	}
	if !opts.ACLEnabled() {
		return nil
	}
	if a.Count() == 0 {
		a = nil
	}

	start := time.Now()
	defer func() { m.record("set", t, start, err) }()

	name, err := XattrName(t)
	if err != nil {
		return err
	}

	switch t {
	case acl.TypeAccess:
		if a != nil {
			mode, equivalent, err := acl.EquivMode(a, ino.Mode)
			if err != nil {
				return err
			}
			ino.Mode = mode
			ino.Touch()
			if err := m.inodes.MarkDirty(ctx, ino); err != nil {
				return fmt.Errorf("update mode of %s: %w", ino.ID, err)
			}
			if equivalent {
				a = nil
			}
		}
	case acl.TypeDefault:
		if !ino.IsDir() {
			if a != nil {
				return fmt.Errorf("set default ACL on non-directory %s: %w", ino.ID, acl.ErrPermission)
			}
			return nil
		}
	}

	var value []byte
	if a != nil {
		if value, err = acl.Encode(a, m.mapper); err != nil {
			return err
		}
	}

	if err := m.attrs.SetXattr(ctx, ino.ID, name, value); err != nil {
		return fmt.Errorf("write %s ACL of %s: %w", t, ino.ID, err)
	}

	logger.Debug("Stored %s ACL of %s (%d entries)", t, ino.ID, a.Count())
	m.cache.Store(ino.ID, t, a)
	return nil
}

// Forget drops the cached ACLs of an inode. Call it when the inode is
// evicted or deleted.
func (m *Manager) Forget(id uuid.UUID) {
	m.cache.Forget(id)
}
