package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metadata/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs dittoacl commands against a badger store in a temp directory.
type cli struct {
	t          *testing.T
	configPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
logging:
  level: ERROR
  output: stderr
store:
  type: badger
  badger:
    path: %s
`, filepath.Join(dir, "db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return &cli{t: t, configPath: configPath}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	full := append([]string{args[0], "-config", c.configPath}, args[1:]...)
	err := run(context.Background(), full, &out)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "dittoacl %s", strings.Join(args, " "))
	return out
}

func TestCLI_InheritChmodGetfacl(t *testing.T) {
	c := newCLI(t)

	root := strings.TrimSpace(c.mustRun("mkroot", "-uid", "0", "-gid", "0"))
	c.mustRun("setfacl", "-as-uid", "0", "-default", root, "u::rwx,u:42:rw-,g::r-x,m::rw-,o::r--")

	out := c.mustRun("create", "-parent", root, "-type", "file", "-mode", "0644", "-uid", "1000", "-gid", "1000")
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	file := fields[0]
	assert.Equal(t, "0644", fields[1])

	facl := c.mustRun("getfacl", file)
	assert.Contains(t, facl, "# owner: 1000\n")
	assert.Contains(t, facl, "user::rw-\n")
	assert.Contains(t, facl, "#effective:r--")
	assert.Contains(t, facl, "mask::r--\n")
	assert.Contains(t, facl, "other::r--\n")

	assert.Equal(t, metadata.XattrACLAccess+"\n", c.mustRun("listxattr", file))

	out = c.mustRun("chmod", "-as-uid", "1000", file, "0600")
	assert.Equal(t, file+" 0600\n", out)
	assert.Contains(t, c.mustRun("getfacl", file), "mask::---\n")

	rootFacl := c.mustRun("getfacl", "-default", root)
	assert.Contains(t, rootFacl, "default:user:42:rw-\n")
}

func TestCLI_UmaskWithoutDefault(t *testing.T) {
	c := newCLI(t)

	root := strings.TrimSpace(c.mustRun("mkroot"))
	out := c.mustRun("create", "-parent", root, "-type", "dir", "-umask", "027")
	assert.True(t, strings.HasSuffix(out, " 0750\n"), "got %q", out)

	dir := strings.Fields(out)[0]
	facl := c.mustRun("getfacl", dir)
	assert.Contains(t, facl, "user::rwx\ngroup::r-x\nother::---\n")
	assert.Empty(t, c.mustRun("listxattr", dir))
}

func TestCLI_SetfaclRequiresOwner(t *testing.T) {
	c := newCLI(t)

	root := strings.TrimSpace(c.mustRun("mkroot", "-uid", "1000", "-gid", "1000"))

	_, err := c.run("setfacl", "-as-uid", "2000", root, "u::rwx,g::---,o::---")
	assert.ErrorIs(t, err, acl.ErrPermission)

	_, err = c.run("chmod", "-as-uid", "2000", root, "0700")
	assert.ErrorIs(t, err, metadata.ErrPermissionDenied)

	out := c.mustRun("setfacl", "-as-uid", "2000", "-cap-fowner", root, "u::rwx,g::---,o::---")
	assert.Equal(t, root+" 0700\n", out)
}

func TestCLI_NFSRoundTrip(t *testing.T) {
	c := newCLI(t)

	src := strings.TrimSpace(c.mustRun("mkroot", "-uid", "0", "-gid", "0"))
	c.mustRun("setfacl", "-as-uid", "0", src, "u::rwx,u:42:r-x,g::r-x,g:7:rwx,m::rwx,o::---")
	c.mustRun("setfacl", "-as-uid", "0", "-default", src, "u::rwx,u:42:rw-,g::r-x,m::rw-,o::r--")

	wire := c.mustRun("getfacl", "-nfs", src)
	// access record first: aclcnt, then the counted array
	require.GreaterOrEqual(t, len(wire), 8)
	assert.Equal(t, uint32(6), binary.BigEndian.Uint32([]byte(wire[:4])))
	assert.Equal(t, uint32(6), binary.BigEndian.Uint32([]byte(wire[4:8])))

	path := filepath.Join(t.TempDir(), "acl.xdr")
	require.NoError(t, os.WriteFile(path, []byte(wire), 0o600))

	dst := strings.TrimSpace(c.mustRun("mkroot", "-uid", "0", "-gid", "0", "-mode", "0700"))
	out := c.mustRun("setfacl", "-as-uid", "0", "-nfs", path, dst)
	assert.Equal(t, dst+" 0770\n", out)

	want := strings.Replace(c.mustRun("getfacl", src), src, dst, 1)
	assert.Equal(t, want, c.mustRun("getfacl", dst))

	// the access record alone carries no default entries
	accessOnly := c.mustRun("getfacl", "-nfs", "-access", src)
	assert.Less(t, len(accessOnly), len(wire))

	_, err := c.run("setfacl", "-as-uid", "0", "-nfs", path, "-remove", dst)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.xdr")
	require.NoError(t, os.WriteFile(empty, []byte{0, 0, 0, 0, 0, 0, 0, 0}, 0o600))
	_, err = c.run("setfacl", "-as-uid", "0", "-nfs", empty, dst)
	assert.Error(t, err)
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("getfacl", "not-a-uuid")
	assert.Error(t, err)

	_, err = c.run("create", "-parent", "8a4f7c2e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	assert.ErrorIs(t, run(context.Background(), nil, &bytes.Buffer{}), errUsage)
	assert.Error(t, run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]uint32{"0755": 0o755, "644": 0o644, "0o1777": 0o1777} {
		got, err := parseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "8", "17777", "rwx"} {
		_, err := parseMode(in)
		assert.Error(t, err, in)
	}
}

func TestFormatFacl(t *testing.T) {
	ino := metadata.NewInode(metadata.FileTypeDirectory, 0o755, 1, 2)
	access, err := acl.Parse("u::rwx,u:42:rwx,g::r-x,m::r--,o::---")
	require.NoError(t, err)
	def, err := acl.Parse("u::rwx,g::r-x,o::---")
	require.NoError(t, err)

	got := formatFacl(ino, access, def)

	want := fmt.Sprintf(`# file: %s
# owner: 1
# group: 2
user::rwx
user:42:rwx             #effective:r--
group::r-x              #effective:r--
mask::r--
other::---
default:user::rwx
default:group::r-x
default:other::---

`, ino.ID)
	assert.Equal(t, want, got)
}

func TestCLI_GC(t *testing.T) {
	c := newCLI(t)
	ctx := context.Background()

	root := strings.TrimSpace(c.mustRun("mkroot", "-uid", "0", "-gid", "0"))
	c.mustRun("setfacl", "-as-uid", "0", "-default", root, "u::rwx,u:42:rw-,g::r-x,m::rw-,o::r--")

	// leave an ACL behind for an inode that was never stored
	store, err := badger.NewBadgerMetadataStore(ctx, badger.BadgerMetadataStoreConfig{
		DBPath: filepath.Join(filepath.Dir(c.configPath), "db"),
	})
	require.NoError(t, err)
	orphan := uuid.New()
	require.NoError(t, store.SetXattr(ctx, orphan, metadata.XattrACLAccess, []byte{0, 0, 0, 2}))
	require.NoError(t, store.Close())

	assert.Equal(t, "scanned 2 orphaned 1 removed 0 failed 0\n", c.mustRun("gc", "-dry-run"))
	assert.Equal(t, "scanned 2 orphaned 1 removed 1 failed 0\n", c.mustRun("gc"))
	assert.Equal(t, "scanned 1 orphaned 0 removed 0 failed 0\n", c.mustRun("gc"))

	assert.Contains(t, c.mustRun("getfacl", root), "default:user:42:rw-")

	// the background mode needs the gc section
	_, err = c.run("gc", "-watch")
	assert.Error(t, err)
}
