package acl

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittoacl/pkg/identity"
)

// External xattr form
// ===================
//
// This is the representation exchanged with callers through the
// system.posix_acl_access and system.posix_acl_default attributes (what
// getfacl/setfacl read and write):
//
//	header  u32  version (2), little-endian
//	entry   u16  tag, little-endian
//	        u16  perm, little-endian
//	        u32  id, little-endian (XattrUndefinedID for unnamed entries)
//
// Every entry is 8 bytes, unlike the on-disk format.

const (
	// XattrVersion is the version tag of the external xattr form.
	XattrVersion uint32 = 0x0002

	// XattrHeaderSize is the size of the external header.
	XattrHeaderSize = 4

	// XattrEntrySize is the size of every external entry.
	XattrEntrySize = 8

	// XattrUndefinedID is written in the id field of unnamed entries.
	XattrUndefinedID uint32 = 0xFFFFFFFF
)

// XattrSize returns the size of a in the external form.
func XattrSize(a *ACL) int {
	return XattrHeaderSize + a.Count()*XattrEntrySize
}

// FromXattr parses the external xattr form.
//
// A nil or empty value yields (nil, nil). A zero-entry buffer also yields
// (nil, nil). A version other than XattrVersion yields ErrVersion; every
// other structural problem, and any identifier m cannot resolve, yields
// ErrFormat. Structural POSIX rules are not checked here; see Valid.
func FromXattr(value []byte, m identity.Mapper) (*ACL, error) {
	if len(value) == 0 {
		return nil, nil
	}
	if len(value) < XattrHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrFormat, len(value))
	}
	if v := binary.LittleEndian.Uint32(value); v != XattrVersion {
		return nil, fmt.Errorf("%w: %#x", ErrVersion, v)
	}

	payload := len(value) - XattrHeaderSize
	if payload%XattrEntrySize != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not a whole number of entries", ErrFormat, payload)
	}
	count := payload / XattrEntrySize
	if count == 0 {
		return nil, nil
	}

	a := &ACL{Entries: make([]Entry, count)}
	for n := range a.Entries {
		rec := value[XattrHeaderSize+n*XattrEntrySize:]
		e := Entry{
			Tag:  Tag(binary.LittleEndian.Uint16(rec)),
			Perm: Perm(binary.LittleEndian.Uint16(rec[2:])),
			ID:   identity.InvalidID,
		}

		switch e.Tag {
		case TagUserObj, TagGroupObj, TagMask, TagOther:
		case TagUser, TagGroup:
			id, err := resolve(m, e.Tag, binary.LittleEndian.Uint32(rec[4:]))
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrFormat, n, err)
			}
			e.ID = id
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown tag %#x", ErrFormat, n, uint16(e.Tag))
		}
		a.Entries[n] = e
	}
	return a, nil
}

// ToXattr serializes a into buf using the external xattr form and returns
// the number of bytes the serialization takes.
//
// When buf is empty only the size is computed, which lets callers size their
// buffer first. A non-empty buf shorter than the required size yields
// ErrRange.
func ToXattr(a *ACL, m identity.Mapper, buf []byte) (int, error) {
	size := XattrSize(a)
	if len(buf) == 0 {
		return size, nil
	}
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrRange, size, len(buf))
	}

	binary.LittleEndian.PutUint32(buf, XattrVersion)
	for n, e := range a.entries() {
		rec := buf[XattrHeaderSize+n*XattrEntrySize:]
		if !e.Tag.Valid() {
			return 0, fmt.Errorf("%w: entry %d has unknown tag %#x", ErrFormat, n, uint16(e.Tag))
		}
		binary.LittleEndian.PutUint16(rec, uint16(e.Tag))
		binary.LittleEndian.PutUint16(rec[2:], uint16(e.Perm))

		raw := XattrUndefinedID
		if e.Tag.Named() {
			var err error
			if raw, err = unresolve(m, e.Tag, e.ID); err != nil {
				return 0, fmt.Errorf("%w: entry %d: %v", ErrFormat, n, err)
			}
		}
		binary.LittleEndian.PutUint32(rec[4:], raw)
	}
	return size, nil
}
