package acl

import "fmt"

// permBits is the rwxrwxrwx part of a mode.
const permBits = 0o777

// EquivMode folds the owner, group, mask and other entries of a into the
// permission bits of mode and reports whether a carries no information
// beyond those bits.
//
// The returned mode keeps every non-permission bit of mode. A mask entry
// replaces the group bits, as it is what ls and stat report. An ACL with
// named entries or a mask is never equivalent. An unknown tag yields
// ErrValidation.
func EquivMode(a *ACL, mode uint32) (uint32, bool, error) {
	var bits uint32
	equivalent := true

	for _, e := range a.entries() {
		p := uint32(e.Perm & PermAll)
		switch e.Tag {
		case TagUserObj:
			bits |= p << 6
		case TagGroupObj:
			bits |= p << 3
		case TagOther:
			bits |= p
		case TagMask:
			bits = (bits &^ 0o070) | p<<3
			equivalent = false
		case TagUser, TagGroup:
			equivalent = false
		default:
			return mode, false, fmt.Errorf("%w: unknown tag %#x", ErrValidation, uint16(e.Tag))
		}
	}

	return (mode &^ permBits) | bits, equivalent, nil
}

// Chmod returns a copy of a updated for a new mode: the owner entry takes
// the owner bits, the mask (or the owning group when there is no mask) takes
// the group bits, and other takes the other bits. Named entries are left
// unchanged.
//
// An ACL missing the owner or other entry, or missing both mask and owning
// group, yields ErrValidation, as does a result that fails Valid.
func Chmod(a *ACL, mode uint32) (*ACL, error) {
	if a.Count() == 0 {
		return nil, fmt.Errorf("%w: chmod of an empty ACL", ErrValidation)
	}
	out := a.Clone()

	userObj := out.find(TagUserObj)
	groupObj := out.find(TagGroupObj)
	mask := out.find(TagMask)
	other := out.find(TagOther)

	if userObj == nil || other == nil {
		return nil, fmt.Errorf("%w: missing owner or other entry", ErrValidation)
	}
	userObj.Perm = Perm(mode>>6) & PermAll
	switch {
	case mask != nil:
		mask.Perm = Perm(mode>>3) & PermAll
	case groupObj != nil:
		groupObj.Perm = Perm(mode>>3) & PermAll
	default:
		return nil, fmt.Errorf("%w: missing mask and owning group entry", ErrValidation)
	}
	other.Perm = Perm(mode) & PermAll

	if err := Valid(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create derives the access ACL and mode of a new inode from the default
// ACL of its parent directory and the mode requested by the creator.
//
// Each of owner, group class and other is limited to the intersection of the
// requested bits and the inherited entry, and the inherited entries are
// narrowed to match. When a has a mask, the mask plays the group class role
// and the owning group entry is kept as inherited. The returned bool is true
// when the result is an extended ACL, one that cannot be reduced to mode
// bits and must be stored.
func Create(a *ACL, mode uint32) (*ACL, uint32, bool, error) {
	if a.Count() == 0 {
		return nil, mode, false, fmt.Errorf("%w: create from an empty ACL", ErrValidation)
	}
	out := a.Clone()
	bits := mode & permBits
	extended := false

	var groupObj, mask *Entry
	for i := range out.Entries {
		e := &out.Entries[i]
		switch e.Tag {
		case TagUserObj:
			e.Perm &= Perm(bits>>6) & PermAll
			bits &= uint32(e.Perm)<<6 | ^uint32(0o700)
		case TagUser, TagGroup:
			extended = true
		case TagGroupObj:
			groupObj = e
		case TagOther:
			e.Perm &= Perm(bits) & PermAll
			bits &= uint32(e.Perm) | ^uint32(0o007)
		case TagMask:
			mask = e
			extended = true
		default:
			return nil, mode, false, fmt.Errorf("%w: unknown tag %#x", ErrValidation, uint16(e.Tag))
		}
	}

	class := mask
	if class == nil {
		class = groupObj
	}
	if class == nil {
		return nil, mode, false, fmt.Errorf("%w: missing mask and owning group entry", ErrValidation)
	}
	class.Perm &= Perm(bits>>3) & PermAll
	bits &= uint32(class.Perm)<<3 | ^uint32(0o070)

	return out, (mode &^ permBits) | (bits & permBits), extended, nil
}
