package acl

import (
	"testing"

	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modeRegular = 0o100000
	modeDir     = 0o040000
)

// ============================================================================
// EquivMode Tests
// ============================================================================

func TestEquivMode(t *testing.T) {
	tests := []struct {
		name       string
		acl        string
		mode       uint32
		wantMode   uint32
		equivalent bool
	}{
		{
			name:       "MinimalMatchesMode",
			acl:        "u::rw-,g::r--,o::r--",
			mode:       modeRegular | 0o644,
			wantMode:   modeRegular | 0o644,
			equivalent: true,
		},
		{
			name:       "MinimalRewritesBits",
			acl:        "u::rwx,g::r-x,o::---",
			mode:       modeRegular | 0o644,
			wantMode:   modeRegular | 0o750,
			equivalent: true,
		},
		{
			name:       "MaskOverridesGroupBits",
			acl:        "u::rwx,g::rwx,m::r--,o::---",
			mode:       modeDir | 0o777,
			wantMode:   modeDir | 0o740,
			equivalent: false,
		},
		{
			name:       "NamedEntryIsExtended",
			acl:        "u::rw-,u:42:rw-,g::r--,m::rw-,o::r--",
			mode:       modeRegular,
			wantMode:   modeRegular | 0o664,
			equivalent: false,
		},
		{
			name:       "KeepsSpecialBits",
			acl:        "u::rwx,g::r-x,o::r-x",
			mode:       modeRegular | 0o4000 | 0o700,
			wantMode:   modeRegular | 0o4000 | 0o755,
			equivalent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, equivalent, err := EquivMode(mustParse(t, tt.acl), tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode, "got %#o", mode)
			assert.Equal(t, tt.equivalent, equivalent)
		})
	}

	t.Run("UnknownTag", func(t *testing.T) {
		a := mustParse(t, "u::rwx,g::r-x,o::r-x")
		a.Entries[2].Tag = Tag(0x80)
		_, _, err := EquivMode(a, 0o644)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

// ============================================================================
// Chmod Tests
// ============================================================================

func TestChmod(t *testing.T) {
	t.Run("PreservesNamedEntries", func(t *testing.T) {
		in := mustParse(t, "u::rwx,u:42:rw-,u:43:--x,g::r-x,g:7:rwx,m::rwx,o::r-x")

		out, err := Chmod(in, modeRegular|0o640)
		require.NoError(t, err)

		assert.Equal(t, "user::rw-,user:42:rw-,user:43:--x,group::r-x,group:7:rwx,mask::r--,other::---", out.String())
		for i, e := range out.Entries {
			if e.Tag.Named() {
				assert.Equal(t, in.Entries[i].ID, e.ID)
				assert.Equal(t, in.Entries[i].Perm, e.Perm)
			}
		}
	})

	t.Run("DoesNotModifyInput", func(t *testing.T) {
		in := mustParse(t, "u::rwx,g::r-x,o::r-x")
		_, err := Chmod(in, 0o600)
		require.NoError(t, err)
		assert.Equal(t, "user::rwx,group::r-x,other::r-x", in.String())
	})

	t.Run("WithoutMaskUpdatesGroup", func(t *testing.T) {
		out, err := Chmod(mustParse(t, "u::rwx,g::r-x,o::r-x"), 0o751)
		require.NoError(t, err)
		assert.Equal(t, "user::rwx,group::r-x,other::--x", out.String())
	})

	t.Run("MissingOther", func(t *testing.T) {
		_, err := Chmod(mustParse(t, "u::rwx,g::r-x"), 0o755)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("NamedEntriesWithoutMask", func(t *testing.T) {
		_, err := Chmod(mustParse(t, "u::rwx,u:42:r--,g::r-x,o::r-x"), 0o755)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Chmod(nil, 0o755)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

// ============================================================================
// Create Tests
// ============================================================================

func TestCreate(t *testing.T) {
	t.Run("ExtendedDefaultOnNewFile", func(t *testing.T) {
		def := mustParse(t, "u::rwx,u:42:rw-,g::r-x,m::rw-,o::r--")

		out, mode, extended, err := Create(def, modeRegular|0o644)
		require.NoError(t, err)
		assert.True(t, extended)
		assert.Equal(t, uint32(modeRegular|0o644), mode, "got %#o", mode)
		assert.Equal(t, "user::rw-,user:42:rw-,group::r-x,mask::r--,other::r--", out.String())
		assert.Equal(t, identity.ID(42), out.Entries[1].ID)

		// the parent's default ACL is left alone
		assert.Equal(t, "user::rwx,user:42:rw-,group::r-x,mask::rw-,other::r--", def.String())
	})

	t.Run("MinimalDefaultNarrowsMode", func(t *testing.T) {
		out, mode, extended, err := Create(mustParse(t, "u::rwx,g::r-x,o::---"), modeDir|0o777)
		require.NoError(t, err)
		assert.False(t, extended)
		assert.Equal(t, uint32(modeDir|0o750), mode, "got %#o", mode)
		assert.Equal(t, "user::rwx,group::r-x,other::---", out.String())
	})

	t.Run("MissingGroupClass", func(t *testing.T) {
		_, _, _, err := Create(mustParse(t, "u::rwx,o::---"), 0o644)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
