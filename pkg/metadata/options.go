package metadata

import (
	"fmt"
	"strings"
)

// MountFlag is a single mount-time option bit.
type MountFlag uint32

const (
	// POSIXACL enables POSIX ACL enforcement and storage on the mount.
	POSIXACL MountFlag = 1 << iota
)

// MountOptions carries the options a filesystem was mounted with. It is
// passed explicitly to every ACL operation.
type MountOptions struct {
	Flags MountFlag
}

// Has reports whether f is set.
func (o MountOptions) Has(f MountFlag) bool {
	return o.Flags&f != 0
}

// ACLEnabled reports whether the POSIXACL flag is set.
func (o MountOptions) ACLEnabled() bool {
	return o.Has(POSIXACL)
}

// ParseMountOptions parses a comma separated option string such as
// "acl" or "noacl,acl". Later options override earlier ones.
func ParseMountOptions(s string) (MountOptions, error) {
	var opts MountOptions
	for _, opt := range strings.Split(s, ",") {
		switch strings.TrimSpace(opt) {
		case "":
		case "acl":
			opts.Flags |= POSIXACL
		case "noacl":
			opts.Flags &^= POSIXACL
		default:
			return opts, fmt.Errorf("%w: unknown mount option %q", ErrInvalidArgument, opt)
		}
	}
	return opts, nil
}

func (o MountOptions) String() string {
	if o.ACLEnabled() {
		return "acl"
	}
	return "noacl"
}
