package acl

import (
	"fmt"

	"github.com/marmos91/dittoacl/pkg/identity"
)

// Entries of a valid ACL appear in this order; validation walks the list as
// a state machine over these stages.
const (
	stageUserObj = iota
	stageUser
	stageGroup
	stageOther
	stageDone
)

// Valid checks that a is a well-formed POSIX ACL:
//
//	user::  user:<id>:*  group::  group:<id>:*  [mask::]  other::
//
// Exactly one owner, owning group and other entry; at most one mask, which is
// mandatory as soon as a named entry exists; named entries carry valid and
// unique identifiers; permissions use only the rwx bits. Failures wrap
// ErrValidation. A nil ACL is valid (it means "no ACL").
func Valid(a *ACL) error {
	if a == nil {
		return nil
	}
	if len(a.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrValidation)
	}

	stage := stageUserObj
	needsMask := false
	users := make(map[identity.ID]struct{})
	groups := make(map[identity.ID]struct{})

	for n, e := range a.Entries {
		if e.Perm&^PermAll != 0 {
			return fmt.Errorf("%w: entry %d has invalid permissions %#o", ErrValidation, n, e.Perm)
		}

		switch e.Tag {
		case TagUserObj:
			if stage != stageUserObj {
				return misplaced(n, e.Tag)
			}
			stage = stageUser

		case TagUser:
			if stage != stageUser {
				return misplaced(n, e.Tag)
			}
			if err := checkNamed(n, e, users); err != nil {
				return err
			}
			needsMask = true

		case TagGroupObj:
			if stage != stageUser {
				return misplaced(n, e.Tag)
			}
			stage = stageGroup

		case TagGroup:
			if stage != stageGroup {
				return misplaced(n, e.Tag)
			}
			if err := checkNamed(n, e, groups); err != nil {
				return err
			}
			needsMask = true

		case TagMask:
			if stage != stageGroup {
				return misplaced(n, e.Tag)
			}
			stage = stageOther

		case TagOther:
			if stage == stageOther || (stage == stageGroup && !needsMask) {
				stage = stageDone
				continue
			}
			if stage == stageGroup {
				return fmt.Errorf("%w: named entries require a mask entry", ErrValidation)
			}
			return misplaced(n, e.Tag)

		default:
			return fmt.Errorf("%w: entry %d has unknown tag %#x", ErrValidation, n, uint16(e.Tag))
		}
	}

	if stage != stageDone {
		return fmt.Errorf("%w: incomplete ACL", ErrValidation)
	}
	return nil
}

func misplaced(n int, t Tag) error {
	return fmt.Errorf("%w: entry %d (%s) is duplicated or out of order", ErrValidation, n, t)
}

func checkNamed(n int, e Entry, seen map[identity.ID]struct{}) error {
	if !e.ID.Valid() {
		return fmt.Errorf("%w: entry %d (%s) has no valid identifier", ErrValidation, n, e.Tag)
	}
	if _, dup := seen[e.ID]; dup {
		return fmt.Errorf("%w: entry %d (%s) duplicates identifier %d", ErrValidation, n, e.Tag, e.ID)
	}
	seen[e.ID] = struct{}{}
	return nil
}
