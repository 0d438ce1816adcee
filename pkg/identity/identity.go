// Package identity translates between the numeric identifiers stored on disk
// and the principals the rest of DittoACL works with.
//
// On-disk identifiers are raw 32-bit user and group ids. Principals (ID) are
// the same ids after they have been mapped through an identity namespace,
// similar to Linux user namespaces with their uid_map/gid_map files. The
// initial namespace maps every id onto itself.
package identity

import (
	"errors"
	"fmt"
)

// ID is a namespace-resolved user or group identifier.
type ID uint32

// InvalidID is never a valid principal. It mirrors the kernel's
// INVALID_UID/INVALID_GID and is what unmapped identifiers resolve to.
const InvalidID ID = 0xFFFFFFFF

// Valid reports whether id refers to a real principal.
func (id ID) Valid() bool {
	return id != InvalidID
}

// ErrUnmapped is returned when an identifier has no mapping in a namespace.
var ErrUnmapped = errors.New("identifier not mapped")

// Mapper resolves on-disk identifiers into principals and back.
//
// Implementations must be safe for concurrent use and must not call back
// into the ACL layer.
type Mapper interface {
	// ResolveUser maps an on-disk user id to a principal.
	ResolveUser(uid uint32) (ID, error)

	// ResolveGroup maps an on-disk group id to a principal.
	ResolveGroup(gid uint32) (ID, error)

	// UnresolveUser maps a user principal back to its on-disk id.
	UnresolveUser(id ID) (uint32, error)

	// UnresolveGroup maps a group principal back to its on-disk id.
	UnresolveGroup(id ID) (uint32, error)
}

// Range is a single line of an id map: Count ids starting at Inside map to
// Count principals starting at Outside.
type Range struct {
	Inside  uint32 `mapstructure:"inside" yaml:"inside"`
	Outside uint32 `mapstructure:"outside" yaml:"outside"`
	Count   uint32 `mapstructure:"count" yaml:"count" validate:"gt=0"`
}

func (r Range) contains(v uint32, base uint32) bool {
	return v >= base && uint64(v) < uint64(base)+uint64(r.Count)
}

// Namespace is a Mapper defined by explicit uid and gid ranges.
//
// A Namespace is immutable after construction and therefore safe for
// concurrent use.
type Namespace struct {
	uids []Range
	gids []Range
}

// NewNamespace builds a namespace from uid and gid ranges.
//
// Ranges must not overlap on either side; overlapping ranges would make the
// mapping ambiguous and are rejected.
func NewNamespace(uids, gids []Range) (*Namespace, error) {
	if err := checkRanges(uids); err != nil {
		return nil, fmt.Errorf("uid map: %w", err)
	}
	if err := checkRanges(gids); err != nil {
		return nil, fmt.Errorf("gid map: %w", err)
	}
	return &Namespace{
		uids: append([]Range(nil), uids...),
		gids: append([]Range(nil), gids...),
	}, nil
}

// InitNamespace returns the identity namespace: every id maps to itself.
func InitNamespace() *Namespace {
	full := []Range{{Inside: 0, Outside: 0, Count: 0xFFFFFFFF}}
	return &Namespace{uids: full, gids: full}
}

func checkRanges(ranges []Range) error {
	for i, a := range ranges {
		if a.Count == 0 {
			return fmt.Errorf("range %d: count must be positive", i)
		}
		for j := i + 1; j < len(ranges); j++ {
			b := ranges[j]
			if overlaps(a.Inside, a.Count, b.Inside, b.Count) {
				return fmt.Errorf("ranges %d and %d overlap on the inside", i, j)
			}
			if overlaps(a.Outside, a.Count, b.Outside, b.Count) {
				return fmt.Errorf("ranges %d and %d overlap on the outside", i, j)
			}
		}
	}
	return nil
}

func overlaps(a, an, b, bn uint32) bool {
	aEnd := uint64(a) + uint64(an)
	bEnd := uint64(b) + uint64(bn)
	return uint64(a) < bEnd && uint64(b) < aEnd
}

func mapDown(ranges []Range, v uint32) (ID, error) {
	for _, r := range ranges {
		if r.contains(v, r.Inside) {
			id := ID(r.Outside + (v - r.Inside))
			if !id.Valid() {
				break
			}
			return id, nil
		}
	}
	return InvalidID, fmt.Errorf("id %d: %w", v, ErrUnmapped)
}

func mapUp(ranges []Range, id ID) (uint32, error) {
	if !id.Valid() {
		return 0, fmt.Errorf("principal %d: %w", id, ErrUnmapped)
	}
	v := uint32(id)
	for _, r := range ranges {
		if r.contains(v, r.Outside) {
			return r.Inside + (v - r.Outside), nil
		}
	}
	return 0, fmt.Errorf("principal %d: %w", id, ErrUnmapped)
}

// ResolveUser implements Mapper.
func (n *Namespace) ResolveUser(uid uint32) (ID, error) { return mapDown(n.uids, uid) }

// ResolveGroup implements Mapper.
func (n *Namespace) ResolveGroup(gid uint32) (ID, error) { return mapDown(n.gids, gid) }

// UnresolveUser implements Mapper.
func (n *Namespace) UnresolveUser(id ID) (uint32, error) { return mapUp(n.uids, id) }

// UnresolveGroup implements Mapper.
func (n *Namespace) UnresolveGroup(id ID) (uint32, error) { return mapUp(n.gids, id) }
