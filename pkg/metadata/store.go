package metadata

import (
	"context"

	"github.com/google/uuid"
)

// Attribute names under which ACLs are persisted.
const (
	XattrACLAccess  = "system.posix_acl_access"
	XattrACLDefault = "system.posix_acl_default"
)

// ============================================================================
// Store Interfaces
// ============================================================================

// AttributeStore persists opaque named byte values per inode.
//
// The ACL layer stores its binary encoding here and never interprets the
// store's own layout. Implementations must be safe for concurrent use.
type AttributeStore interface {
	// GetXattr returns the value stored under name for inode id.
	//
	// Returns:
	//   - []byte: A copy of the value; callers may retain it
	//   - error: ErrNoData if the attribute is absent, backend errors otherwise
	GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error)

	// SetXattr stores value under name for inode id.
	//
	// A nil value removes the attribute. Removing an attribute that does not
	// exist succeeds.
	SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error
}

// InodeStore persists inode metadata.
type InodeStore interface {
	// GetInode returns a copy of the inode with the given id.
	//
	// Returns:
	//   - error: ErrNotFound if no such inode exists
	GetInode(ctx context.Context, id uuid.UUID) (*Inode, error)

	// PutInode stores a newly created inode.
	//
	// Returns:
	//   - error: ErrAlreadyExists if the id is taken
	PutInode(ctx context.Context, ino *Inode) error

	// MarkDirty persists the current state of a modified inode. It writes
	// through: on return the new mode and ctime are visible to GetInode.
	MarkDirty(ctx context.Context, ino *Inode) error
}

// AttributeScanner is implemented by stores that can enumerate every inode
// holding attributes. The collector in pkg/gc uses it to find attributes
// whose inode is gone.
type AttributeScanner interface {
	// ScanXattrs calls fn once per inode with at least one attribute,
	// passing the attribute names. fn runs outside any store lock and may
	// modify the store. Iteration stops at the first error fn returns.
	ScanXattrs(ctx context.Context, fn func(id uuid.UUID, names []string) error) error
}

// Store combines both contracts. Every backend shipped with this module
// implements it.
type Store interface {
	AttributeStore
	InodeStore

	// Close releases resources held by the store.
	Close() error
}
