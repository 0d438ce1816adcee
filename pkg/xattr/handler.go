// Package xattr exposes POSIX ACLs through the extended attribute namespace
// "system.posix_acl_access" and "system.posix_acl_default".
//
// Values cross this boundary in the external form understood by getfacl and
// setfacl (see acl.ToXattr); the handlers translate between that form and the
// aclfs.Manager, enforcing mount options and ownership on the way.
package xattr

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/aclfs"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Request carries the per-call context of an attribute operation.
type Request struct {
	// Opts are the options of the mount the inode lives on.
	Opts metadata.MountOptions

	// Auth identifies the caller. Only Set consults it.
	Auth *metadata.AuthContext

	// Inode is the target. Set may update its mode and ctime.
	Inode *metadata.Inode
}

// Handler serves one ACL attribute.
type Handler struct {
	// Prefix is the full attribute name, e.g. "system.posix_acl_access".
	Prefix string

	// Type is the ACL the attribute maps to.
	Type acl.Type

	manager *aclfs.Manager
	authz   metadata.Authorizer
}

// NewAccessHandler returns the handler of "system.posix_acl_access".
func NewAccessHandler(m *aclfs.Manager, authz metadata.Authorizer) *Handler {
	return &Handler{Prefix: metadata.XattrACLAccess, Type: acl.TypeAccess, manager: m, authz: authz}
}

// NewDefaultHandler returns the handler of "system.posix_acl_default".
func NewDefaultHandler(m *aclfs.Manager, authz metadata.Authorizer) *Handler {
	return &Handler{Prefix: metadata.XattrACLDefault, Type: acl.TypeDefault, manager: m, authz: authz}
}

// List reports the attribute name as a NUL-terminated string.
//
// It returns the number of bytes the name takes, or 0 when ACLs are disabled
// on the mount. The name is copied into buf only if buf is large enough;
// an empty buf is a size query.
func (h *Handler) List(opts metadata.MountOptions, buf []byte) int {
	if !opts.ACLEnabled() {
		return 0
	}
	size := len(h.Prefix) + 1
	if len(buf) >= size {
		copy(buf, h.Prefix)
		buf[size-1] = 0
	}
	return size
}

// Get serializes the inode's ACL into buf and returns its size.
//
// name is what follows Prefix in the requested attribute and must be empty.
// An empty buf returns the required size without copying. Errors:
//   - acl.ErrInvalid: non-empty name
//   - acl.ErrUnsupported: ACLs disabled on the mount
//   - acl.ErrNoData: the inode has no ACL of this type
//   - acl.ErrRange: buf is too small
func (h *Handler) Get(ctx context.Context, req Request, name string, buf []byte) (int, error) {
	if name != "" {
		return 0, fmt.Errorf("%w: unexpected suffix %q on %s", acl.ErrInvalid, name, h.Prefix)
	}
	if !req.Opts.ACLEnabled() {
		return 0, fmt.Errorf("get %s: %w", h.Prefix, acl.ErrUnsupported)
	}

	a, err := h.manager.Get(ctx, req.Opts, req.Inode, h.Type)
	if err != nil {
		return 0, err
	}
	if a == nil {
		return 0, fmt.Errorf("get %s of %s: %w", h.Prefix, req.Inode.ID, acl.ErrNoData)
	}
	return acl.ToXattr(a, h.manager.Mapper(), buf)
}

// Set replaces the inode's ACL with value. A nil value removes it.
//
// Only the owner of the inode, or a caller holding CAP_FOWNER, may change
// ACLs. The value is parsed and validated before it reaches the manager.
// Errors:
//   - acl.ErrInvalid: non-empty name
//   - acl.ErrUnsupported: ACLs disabled on the mount, or the inode is a symlink
//   - acl.ErrPermission: caller is not the owner
//   - acl.ErrFormat, acl.ErrVersion, acl.ErrValidation: bad value
func (h *Handler) Set(ctx context.Context, req Request, name string, value []byte) error {
	if name != "" {
		return fmt.Errorf("%w: unexpected suffix %q on %s", acl.ErrInvalid, name, h.Prefix)
	}
	if !req.Opts.ACLEnabled() {
		return fmt.Errorf("set %s: %w", h.Prefix, acl.ErrUnsupported)
	}
	if !h.authz.IsOwnerOrCapable(req.Auth, req.Inode) {
		logger.Debug("Denied %s change on %s: caller is not the owner", h.Prefix, req.Inode.ID)
		return fmt.Errorf("set %s of %s: %w", h.Prefix, req.Inode.ID, acl.ErrPermission)
	}

	var a *acl.ACL
	if value != nil {
		var err error
		if a, err = acl.FromXattr(value, h.manager.Mapper()); err != nil {
			return err
		}
		if err := acl.Valid(a); err != nil {
			return err
		}
	}
	return h.manager.Set(ctx, req.Opts, req.Inode, h.Type, a)
}
