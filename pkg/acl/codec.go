package acl

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittoacl/pkg/identity"
)

// On-Disk Format
// ==============
//
// ACLs are persisted in a compact, versioned buffer:
//
//	header        u32  version, big-endian           (4 bytes)
//	short record  u16  tag, little-endian            (4 bytes)
//	              u16  perm, little-endian
//	long record   u16  tag, little-endian            (8 bytes)
//	              u16  perm, little-endian
//	              u32  id, big-endian
//
// USER_OBJ, GROUP_OBJ, MASK and OTHER use short records; USER and GROUP use
// long records. The mixed byte order is part of the persisted contract and is
// read by other tooling, so it must be reproduced field by field.

const (
	// Version is the only on-disk format version understood by the codec.
	Version uint32 = 0x0001

	// HeaderSize is the size of the version header.
	HeaderSize = 4

	// ShortEntrySize is the size of a record without identifier.
	ShortEntrySize = 4

	// EntrySize is the size of a record carrying an identifier.
	EntrySize = 8
)

// EntryCount derives the number of entries from a buffer size (header
// included). It returns -1 when size cannot be produced by any combination
// of records.
//
// A valid buffer holds either up to four short records, or exactly four short
// records followed by long records, which is the shape of every ACL that has
// named entries.
func EntryCount(size int) int {
	size -= HeaderSize
	if size < 0 {
		return -1
	}
	s := size - 4*ShortEntrySize
	if s < 0 {
		if size%ShortEntrySize != 0 {
			return -1
		}
		return size / ShortEntrySize
	}
	if s%EntrySize != 0 {
		return -1
	}
	return s/EntrySize + 4
}

// Size returns the exact encoded size of a, header included.
func Size(a *ACL) int {
	size := HeaderSize
	for _, e := range a.entries() {
		if e.Tag.Named() {
			size += EntrySize
		} else {
			size += ShortEntrySize
		}
	}
	return size
}

func (a *ACL) entries() []Entry {
	if a == nil {
		return nil
	}
	return a.Entries
}

// Decode parses an on-disk buffer.
//
// An empty buffer means "no attribute" and yields (nil, nil), as does a
// well-formed buffer with zero entries. Every structural problem yields an
// error wrapping ErrFormat and never a partial ACL. Identifiers of named
// entries are resolved through m while decoding.
func Decode(buf []byte, m identity.Mapper) (*ACL, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrFormat, len(buf))
	}
	if v := binary.BigEndian.Uint32(buf); v != Version {
		return nil, fmt.Errorf("%w: version %#x, want %#x", ErrFormat, v, Version)
	}

	count := EntryCount(len(buf))
	if count < 0 {
		return nil, fmt.Errorf("%w: size %d does not match any entry layout", ErrFormat, len(buf))
	}
	if count == 0 {
		return nil, nil
	}

	a := &ACL{Entries: make([]Entry, count)}
	off := HeaderSize
	for n := 0; n < count; n++ {
		if off+ShortEntrySize > len(buf) {
			return nil, fmt.Errorf("%w: entry %d truncated", ErrFormat, n)
		}
		e := Entry{
			Tag:  Tag(binary.LittleEndian.Uint16(buf[off:])),
			Perm: Perm(binary.LittleEndian.Uint16(buf[off+2:])),
			ID:   identity.InvalidID,
		}

		switch e.Tag {
		case TagUserObj, TagGroupObj, TagMask, TagOther:
			off += ShortEntrySize
		case TagUser, TagGroup:
			if off+EntrySize > len(buf) {
				return nil, fmt.Errorf("%w: entry %d truncated", ErrFormat, n)
			}
			raw := binary.BigEndian.Uint32(buf[off+4:])
			id, err := resolve(m, e.Tag, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrFormat, n, err)
			}
			e.ID = id
			off += EntrySize
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown tag %#x", ErrFormat, n, uint16(e.Tag))
		}
		a.Entries[n] = e
	}

	if off != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, len(buf)-off)
	}
	return a, nil
}

// Encode serializes a into the on-disk format.
//
// The output size is computed up front and the returned slice always has
// exactly that length. Entries are written in input order. A nil or empty
// ACL, an entry with an unknown tag, a mix of records EntryCount cannot
// recover, or an identifier that cannot be mapped back to an on-disk id is
// rejected with ErrFormat.
func Encode(a *ACL, m identity.Mapper) ([]byte, error) {
	if a.Count() == 0 {
		return nil, fmt.Errorf("%w: cannot encode an empty ACL", ErrFormat)
	}

	size := Size(a)
	if EntryCount(size) != len(a.Entries) {
		// Decode could not read this layout back.
		return nil, fmt.Errorf("%w: %d entries do not fit the record layout", ErrFormat, len(a.Entries))
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf, Version)

	off := HeaderSize
	for n, e := range a.Entries {
		if !e.Tag.Valid() {
			return nil, fmt.Errorf("%w: entry %d has unknown tag %#x", ErrFormat, n, uint16(e.Tag))
		}
		binary.LittleEndian.PutUint16(buf[off:], uint16(e.Tag))
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(e.Perm))

		if !e.Tag.Named() {
			off += ShortEntrySize
			continue
		}
		raw, err := unresolve(m, e.Tag, e.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrFormat, n, err)
		}
		binary.BigEndian.PutUint32(buf[off+4:], raw)
		off += EntrySize
	}

	return buf, nil
}

func resolve(m identity.Mapper, t Tag, raw uint32) (identity.ID, error) {
	if t == TagUser {
		return m.ResolveUser(raw)
	}
	return m.ResolveGroup(raw)
}

func unresolve(m identity.Mapper, t Tag, id identity.ID) (uint32, error) {
	if t == TagUser {
		return m.UnresolveUser(id)
	}
	return m.UnresolveGroup(id)
}
