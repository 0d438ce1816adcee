package acl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/dittoacl/pkg/identity"
)

// String renders p as "rwx" with '-' for missing bits.
func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExecute != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// String renders e in getfacl notation, e.g. "user:42:rw-".
func (e Entry) String() string {
	switch e.Tag {
	case TagUserObj:
		return "user::" + e.Perm.String()
	case TagUser:
		return fmt.Sprintf("user:%d:%s", e.ID, e.Perm)
	case TagGroupObj:
		return "group::" + e.Perm.String()
	case TagGroup:
		return fmt.Sprintf("group:%d:%s", e.ID, e.Perm)
	case TagMask:
		return "mask::" + e.Perm.String()
	case TagOther:
		return "other::" + e.Perm.String()
	default:
		return fmt.Sprintf("?%#x::%s", uint16(e.Tag), e.Perm)
	}
}

// String renders a as a comma separated list of entries. A nil ACL renders
// as the empty string.
func (a *ACL) String() string {
	parts := make([]string, 0, a.Count())
	for _, e := range a.entries() {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ",")
}

// Parse reads the textual form produced by String or by getfacl. Entries are
// separated by commas or newlines; blank lines and '#' comments are skipped.
// Tags may be abbreviated (u, g, m, o) and qualifiers must be numeric
// principals. An empty text parses to nil. Parse does not call Valid.
func Parse(text string) (*ACL, error) {
	var entries []Entry
	for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' }) {
		field = strings.TrimSpace(field)
		if i := strings.IndexByte(field, '#'); i >= 0 {
			field = strings.TrimSpace(field[:i])
		}
		if field == "" {
			continue
		}
		e, err := parseEntry(field)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(entries...), nil
}

func parseEntry(field string) (Entry, error) {
	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("%w: %q is not tag:qualifier:perms", ErrValidation, field)
	}
	tag, qualifier, perms := parts[0], strings.TrimSpace(parts[1]), parts[2]

	e := Entry{ID: identity.InvalidID}
	switch tag {
	case "u", "user":
		e.Tag = TagUserObj
		if qualifier != "" {
			e.Tag = TagUser
		}
	case "g", "group":
		e.Tag = TagGroupObj
		if qualifier != "" {
			e.Tag = TagGroup
		}
	case "m", "mask":
		e.Tag = TagMask
	case "o", "other":
		e.Tag = TagOther
	default:
		return Entry{}, fmt.Errorf("%w: unknown tag %q", ErrValidation, tag)
	}

	if e.Tag.Named() {
		id, err := strconv.ParseUint(qualifier, 10, 32)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: qualifier %q: %v", ErrValidation, qualifier, err)
		}
		e.ID = identity.ID(id)
	} else if qualifier != "" {
		return Entry{}, fmt.Errorf("%w: %s entry takes no qualifier", ErrValidation, e.Tag)
	}

	p, err := parsePerm(perms)
	if err != nil {
		return Entry{}, err
	}
	e.Perm = p
	return e, nil
}

func parsePerm(s string) (Perm, error) {
	var p Perm
	for _, c := range strings.TrimSpace(s) {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'x':
			p |= PermExecute
		case '-':
		default:
			return 0, fmt.Errorf("%w: invalid permission %q", ErrValidation, s)
		}
	}
	return p, nil
}
