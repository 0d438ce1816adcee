package acl

import (
	"errors"

	"github.com/marmos91/dittoacl/pkg/metadata"
)

// ============================================================================
// ACL Errors
// ============================================================================

// These errors classify failures of the codec and the equivalence engine.
// Implementations wrap them with context, callers test with errors.Is:
//
//	a, err := acl.Decode(buf, mapper)
//	if errors.Is(err, acl.ErrFormat) {
//	    // attribute is corrupt
//	}

var (
	// ErrFormat indicates a malformed binary buffer: short header, version
	// mismatch, invalid entry count, unknown tag, truncated record or
	// trailing bytes. Never retried; surfaced as "attribute corrupt".
	ErrFormat = errors.New("malformed ACL buffer")

	// ErrValidation indicates an ACL whose content violates the POSIX ACL
	// structure rules (ordering, duplicate entries, missing mask, ...).
	ErrValidation = errors.New("invalid ACL")

	// ErrVersion indicates an external xattr buffer carrying a version this
	// package does not speak. It is reported as "not supported" rather than
	// as corruption.
	ErrVersion = errors.New("unsupported ACL xattr version")

	// ErrRange indicates that a caller-supplied buffer is too small to hold
	// the serialized ACL.
	ErrRange = errors.New("buffer too small for ACL")

	// ErrUnsupported indicates the operation is not available: the inode is
	// a symbolic link, or the ACL feature is disabled for the mount.
	ErrUnsupported = errors.New("ACL operation not supported")

	// ErrPermission indicates the caller may not perform the change, or a
	// default ACL was set on a non-directory.
	ErrPermission = errors.New("ACL operation not permitted")

	// ErrInvalid indicates a bad argument: a non-empty attribute suffix or an
	// unknown ACL type.
	ErrInvalid = errors.New("invalid ACL argument")

	// ErrNoData reports an absent ACL. It is the same value the attribute
	// store returns for a missing attribute.
	ErrNoData = metadata.ErrNoData
)
