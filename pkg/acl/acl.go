// Package acl implements POSIX access control lists: the in-memory model,
// the compact on-disk binary encoding, the external xattr and text forms,
// and the rules that tie an ACL to the permission bits of an inode mode.
//
// The package is pure: no I/O and no locking. Persistence, caching and
// inheritance live in pkg/aclfs.
package acl

import (
	"github.com/marmos91/dittoacl/pkg/identity"
)

// Tag identifies the kind of an ACL entry.
//
// Values match the Linux ACL_* constants so that the external xattr form can
// be exchanged with other tooling unchanged.
type Tag uint16

const (
	// TagUserObj is the owning user entry (user::).
	TagUserObj Tag = 0x01

	// TagUser is a named user entry (user:<id>:).
	TagUser Tag = 0x02

	// TagGroupObj is the owning group entry (group::).
	TagGroupObj Tag = 0x04

	// TagGroup is a named group entry (group:<id>:).
	TagGroup Tag = 0x08

	// TagMask limits the permissions granted by named entries and the
	// owning group (mask::).
	TagMask Tag = 0x10

	// TagOther is the entry for everyone else (other::).
	TagOther Tag = 0x20
)

// Valid reports whether t belongs to the closed set of known tags.
func (t Tag) Valid() bool {
	switch t {
	case TagUserObj, TagUser, TagGroupObj, TagGroup, TagMask, TagOther:
		return true
	}
	return false
}

// Named reports whether entries with this tag carry an identifier.
func (t Tag) Named() bool {
	return t == TagUser || t == TagGroup
}

func (t Tag) String() string {
	switch t {
	case TagUserObj:
		return "user_obj"
	case TagUser:
		return "user"
	case TagGroupObj:
		return "group_obj"
	case TagGroup:
		return "group"
	case TagMask:
		return "mask"
	case TagOther:
		return "other"
	default:
		return "unknown"
	}
}

// Perm is the permission set of an entry.
type Perm uint16

const (
	PermExecute Perm = 0x01
	PermWrite   Perm = 0x02
	PermRead    Perm = 0x04

	// PermAll is the union of all permission bits.
	PermAll = PermRead | PermWrite | PermExecute
)

// Entry is a single permission grant.
type Entry struct {
	// Tag is the entry kind.
	Tag Tag

	// Perm holds the rwx bits granted by the entry.
	Perm Perm

	// ID is the principal for TagUser and TagGroup entries. It is ignored
	// for every other tag.
	ID identity.ID
}

// ACL is an ordered list of entries.
//
// A nil *ACL means "no ACL". An ACL with zero entries is never produced by
// this package; decoders turn a zero count into nil.
type ACL struct {
	Entries []Entry
}

// Type selects which of the two ACLs of an inode an operation refers to.
type Type int

const (
	// TypeAccess governs access to the inode itself.
	TypeAccess Type = iota

	// TypeDefault is inherited by children of a directory.
	TypeDefault
)

func (t Type) String() string {
	switch t {
	case TypeAccess:
		return "access"
	case TypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// New returns an ACL holding a copy of entries, or nil when entries is empty.
func New(entries ...Entry) *ACL {
	if len(entries) == 0 {
		return nil
	}
	return &ACL{Entries: append([]Entry(nil), entries...)}
}

// Count returns the number of entries. A nil ACL has count 0.
func (a *ACL) Count() int {
	if a == nil {
		return 0
	}
	return len(a.Entries)
}

// Clone returns a deep copy of a.
func (a *ACL) Clone() *ACL {
	if a == nil {
		return nil
	}
	return &ACL{Entries: append([]Entry(nil), a.Entries...)}
}

// Equal reports whether a and b hold the same entries in the same order.
// Identifiers of unnamed entries are not compared.
func (a *ACL) Equal(b *ACL) bool {
	if a.Count() != b.Count() {
		return false
	}
	for i := range a.Entries {
		x, y := a.Entries[i], b.Entries[i]
		if x.Tag != y.Tag || x.Perm != y.Perm {
			return false
		}
		if x.Tag.Named() && x.ID != y.ID {
			return false
		}
	}
	return true
}

// find returns the first entry with tag t, or nil.
func (a *ACL) find(t Tag) *Entry {
	for i := range a.Entries {
		if a.Entries[i].Tag == t {
			return &a.Entries[i]
		}
	}
	return nil
}

// FromMode builds the minimal three-entry ACL equivalent to the permission
// bits of mode.
func FromMode(mode uint32) *ACL {
	return &ACL{Entries: []Entry{
		{Tag: TagUserObj, Perm: Perm(mode>>6) & PermAll, ID: identity.InvalidID},
		{Tag: TagGroupObj, Perm: Perm(mode>>3) & PermAll, ID: identity.InvalidID},
		{Tag: TagOther, Perm: Perm(mode) & PermAll, ID: identity.InvalidID},
	}}
}
