package aclfs

import (
	"context"
	"time"

	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// InitACL initialises the ACLs and mode of a freshly created inode ino
// under the directory dir.
//
// ino.Mode must hold the mode requested by the creator; it is rewritten in
// place. When dir has no default ACL (or ACL support is disabled) the
// process umask is applied and nothing is stored. Otherwise a directory
// inherits the default ACL unchanged, and the access ACL and mode are
// derived from it; an access ACL is stored only if it cannot be expressed
// by the mode alone. Symlinks are left untouched.
//
// ino must already exist in the inode store. The caller persists the final
// mode with InodeStore.MarkDirty; the umask path does not do it.
func (m *Manager) InitACL(ctx context.Context, opts metadata.MountOptions, umask uint32, ino, dir *metadata.Inode) (err error) {
	if ino.IsSymlink() {
		return nil
	}

	start := time.Now()
	defer func() {
		if opts.ACLEnabled() {
			m.record("init", acl.TypeDefault, start, err)
		}
	}()

	var def *acl.ACL
	if opts.ACLEnabled() {
		if def, err = m.Get(ctx, opts, dir, acl.TypeDefault); err != nil {
			return err
		}
	}

	if def == nil {
		ino.Mode &^= umask & 0o777
		logger.Debug("No default ACL on %s, applied umask %#o to %s: mode %#o", dir.ID, umask, ino.ID, ino.Mode)
		return nil
	}

	if ino.IsDir() {
		if err := m.Set(ctx, opts, ino, acl.TypeDefault, def); err != nil {
			return err
		}
	}

	access, mode, extended, err := acl.Create(def, ino.Mode)
	if err != nil {
		return err
	}
	ino.Mode = mode
	if m.metrics != nil {
		m.metrics.RecordInheritance(extended)
	}
	logger.Debug("Inherited default ACL of %s into %s: mode %#o, extended=%v", dir.ID, ino.ID, mode, extended)

	if extended {
		return m.Set(ctx, opts, ino, acl.TypeAccess, access)
	}
	return nil
}
