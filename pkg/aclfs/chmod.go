package aclfs

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Chmod rewrites the access ACL of ino after its mode changed. The caller
// has already stored the new mode in ino.Mode.
//
// Owner, mask (or owning group) and other entries take the new permission
// bits; named entries are kept. Inodes without an access ACL need nothing.
func (m *Manager) Chmod(ctx context.Context, opts metadata.MountOptions, ino *metadata.Inode) (err error) {
	if !opts.ACLEnabled() {
		return nil
	}
	if ino.IsSymlink() {
		return fmt.Errorf("chmod ACL of symlink %s: %w", ino.ID, acl.ErrUnsupported)
	}

	start := time.Now()
	defer func() { m.record("chmod", acl.TypeAccess, start, err) }()

	a, err := m.Get(ctx, opts, ino, acl.TypeAccess)
	if err != nil || a == nil {
		return err
	}

	updated, err := acl.Chmod(a, ino.Mode)
	if err != nil {
		return err
	}
	return m.Set(ctx, opts, ino, acl.TypeAccess, updated)
}
