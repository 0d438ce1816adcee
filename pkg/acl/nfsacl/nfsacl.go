// Package nfsacl encodes ACLs for the NFSv3 ACL side protocol (program
// 100227), the form GETACL replies and SETACL arguments carry on the wire.
//
// Each ACL is an XDR counted list:
//
//	uint32          aclcnt;
//	posix_acl_entry aclent<NFS_ACL_MAX_ENTRIES>;
//
//	struct posix_acl_entry {
//	    uint32 e_tag;   // ACL_* tag, NFS_ACL_DEFAULT set for default ACLs
//	    uint32 e_id;
//	    uint32 e_perm;
//	};
package nfsacl

import (
	"fmt"
	"io"
	"sort"

	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/identity"
	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	// MaxEntries bounds the number of entries accepted from the wire.
	MaxEntries = 1024

	// DefaultFlag marks the entries of a default ACL.
	DefaultFlag = 0x1000
)

type wireEntry struct {
	Tag  uint32
	ID   uint32
	Perm uint32
}

// Owner carries the on-disk ids reported in owner and owning group entries.
type Owner struct {
	UID uint32
	GID uint32
}

// Encode writes a to w. A nil ACL is written as an empty list. Owner and
// owning group entries carry the ids in owner, mask and other carry 0.
//
// Returns the number of bytes written.
func Encode(w io.Writer, a *acl.ACL, t acl.Type, owner Owner, m identity.Mapper) (int, error) {
	if a.Count() > MaxEntries {
		return 0, fmt.Errorf("%w: %d entries exceeds maximum %d", acl.ErrFormat, a.Count(), MaxEntries)
	}

	entries := make([]wireEntry, 0, a.Count())
	if a != nil {
		for n, e := range a.Entries {
			we := wireEntry{Tag: uint32(e.Tag), Perm: uint32(e.Perm)}
			switch e.Tag {
			case acl.TagUserObj:
				we.ID = owner.UID
			case acl.TagGroupObj:
				we.ID = owner.GID
			case acl.TagUser:
				uid, err := m.UnresolveUser(e.ID)
				if err != nil {
					return 0, fmt.Errorf("%w: entry %d: %v", acl.ErrFormat, n, err)
				}
				we.ID = uid
			case acl.TagGroup:
				gid, err := m.UnresolveGroup(e.ID)
				if err != nil {
					return 0, fmt.Errorf("%w: entry %d: %v", acl.ErrFormat, n, err)
				}
				we.ID = gid
			case acl.TagMask, acl.TagOther:
			default:
				return 0, fmt.Errorf("%w: entry %d has unknown tag %#x", acl.ErrFormat, n, uint16(e.Tag))
			}
			if t == acl.TypeDefault {
				we.Tag |= DefaultFlag
			}
			entries = append(entries, we)
		}
	}

	total, err := xdr.Marshal(w, uint32(len(entries)))
	if err != nil {
		return total, fmt.Errorf("encode aclcnt: %w", err)
	}
	n, err := xdr.Marshal(w, entries)
	total += n
	if err != nil {
		return total, fmt.Errorf("encode aclent: %w", err)
	}
	return total, nil
}

// Decode reads one ACL from r and returns it in canonical order (owner,
// named users, owning group, named groups, mask, other; named entries by
// ascending id), since clients are not required to send sorted lists.
//
// An empty list decodes to nil. The returned Type tells whether the entries
// were flagged as default entries; mixing flagged and unflagged entries is an
// error.
func Decode(r io.Reader, m identity.Mapper) (*acl.ACL, acl.Type, error) {
	var count, arrayLen uint32
	if _, err := xdr.Unmarshal(r, &count); err != nil {
		return nil, acl.TypeAccess, fmt.Errorf("decode aclcnt: %w", err)
	}
	if _, err := xdr.Unmarshal(r, &arrayLen); err != nil {
		return nil, acl.TypeAccess, fmt.Errorf("decode aclent length: %w", err)
	}
	if count > MaxEntries || arrayLen != count {
		return nil, acl.TypeAccess, fmt.Errorf("%w: aclcnt %d, array length %d", acl.ErrFormat, count, arrayLen)
	}
	if count == 0 {
		return nil, acl.TypeAccess, nil
	}

	t := acl.TypeAccess
	a := &acl.ACL{Entries: make([]acl.Entry, count)}
	for n := range a.Entries {
		var we wireEntry
		if _, err := xdr.Unmarshal(r, &we); err != nil {
			return nil, t, fmt.Errorf("decode aclent %d: %w", n, err)
		}

		flagged := we.Tag&DefaultFlag != 0
		if n == 0 && flagged {
			t = acl.TypeDefault
		} else if flagged != (t == acl.TypeDefault) {
			return nil, t, fmt.Errorf("%w: entry %d mixes access and default entries", acl.ErrFormat, n)
		}

		e := acl.Entry{
			Tag:  acl.Tag(we.Tag &^ DefaultFlag),
			Perm: acl.Perm(we.Perm) & acl.PermAll,
			ID:   identity.InvalidID,
		}
		var err error
		switch e.Tag {
		case acl.TagUser:
			e.ID, err = m.ResolveUser(we.ID)
		case acl.TagGroup:
			e.ID, err = m.ResolveGroup(we.ID)
		case acl.TagUserObj, acl.TagGroupObj, acl.TagMask, acl.TagOther:
		default:
			err = fmt.Errorf("unknown tag %#x", we.Tag)
		}
		if err != nil {
			return nil, t, fmt.Errorf("%w: entry %d: %v", acl.ErrFormat, n, err)
		}
		a.Entries[n] = e
	}

	sort.SliceStable(a.Entries, func(i, j int) bool {
		x, y := a.Entries[i], a.Entries[j]
		if x.Tag != y.Tag {
			return x.Tag < y.Tag
		}
		return x.Tag.Named() && x.ID < y.ID
	})
	return a, t, nil
}
