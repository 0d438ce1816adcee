package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/acl/nfsacl"
	"github.com/marmos91/dittoacl/pkg/config"
	"github.com/marmos91/dittoacl/pkg/gc"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/xattr"
)

// parseMode reads an octal permission string such as "0755" or "644".
func parseMode(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || v > uint64(metadata.ModePermMask) {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	return uint32(v), nil
}

func parseID(fs *flag.FlagSet, n int) (uuid.UUID, error) {
	if fs.NArg() < n+1 {
		return uuid.Nil, fmt.Errorf("missing inode id")
	}
	id, err := uuid.Parse(fs.Arg(n))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid inode id %q: %w", fs.Arg(n), err)
	}
	return id, nil
}

// callerFlags identify the principal a change is made on behalf of.
type callerFlags struct {
	uid       uint
	gid       uint
	capFowner bool
}

func (c *callerFlags) register(fs *flag.FlagSet) {
	fs.UintVar(&c.uid, "as-uid", uint(os.Getuid()), "UID of the caller")
	fs.UintVar(&c.gid, "as-gid", uint(os.Getgid()), "GID of the caller")
	fs.BoolVar(&c.capFowner, "cap-fowner", false, "Caller holds CAP_FOWNER")
}

func (c *callerFlags) auth(ctx context.Context) *metadata.AuthContext {
	var caps metadata.Capability
	if c.capFowner {
		caps |= metadata.CapFowner
	}
	return metadata.NewUnixAuth(ctx, uint32(c.uid), uint32(c.gid), caps)
}

// ============================================================================
// init
// ============================================================================

func runInit(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("path", "", "Write the config here instead of the default location")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *path
	if target == "" {
		var err error
		if target, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigAt(target, *force); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Configuration written to %s\n", target)
	return nil
}

// ============================================================================
// mkroot / create
// ============================================================================

func runMkroot(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("mkroot", flag.ContinueOnError)
	g.register(fs)
	mode := fs.String("mode", "0755", "Permission bits of the root directory")
	uid := fs.Uint("uid", 0, "Owner UID")
	gid := fs.Uint("gid", 0, "Owner GID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	perm, err := parseMode(*mode)
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		root := metadata.NewInode(metadata.FileTypeDirectory, perm, uint32(*uid), uint32(*gid))
		if err := rt.Store.PutInode(ctx, root); err != nil {
			return fmt.Errorf("failed to create root: %w", err)
		}
		logger.Info("Created root directory %s", root.ID)
		_, _ = fmt.Fprintln(out, root.ID)
		return nil
	})
}

func runCreate(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	g.register(fs)
	parentID := fs.String("parent", "", "ID of the parent directory (required)")
	kind := fs.String("type", "file", "Inode type: file, dir, symlink, block, char, socket, fifo")
	mode := fs.String("mode", "", "Requested permission bits (default: 0666 for files, 0777 otherwise)")
	umask := fs.String("umask", "", "Override the configured umask")
	uid := fs.Uint("uid", uint(os.Getuid()), "Owner UID")
	gid := fs.Uint("gid", uint(os.Getgid()), "Owner GID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	typ, ok := metadata.ParseFileType(*kind)
	if !ok {
		return fmt.Errorf("unknown inode type %q", *kind)
	}
	pid, err := uuid.Parse(*parentID)
	if err != nil {
		return fmt.Errorf("invalid -parent %q: %w", *parentID, err)
	}

	requested := *mode
	if requested == "" {
		requested = "0777"
		if typ == metadata.FileTypeRegular {
			requested = "0666"
		}
	}
	perm, err := parseMode(requested)
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		mask := rt.Umask
		if *umask != "" {
			if mask, err = parseMode(*umask); err != nil {
				return err
			}
		}

		parent, err := rt.Store.GetInode(ctx, pid)
		if err != nil {
			return fmt.Errorf("failed to load parent: %w", err)
		}
		if !parent.IsDir() {
			return fmt.Errorf("parent %s is not a directory", pid)
		}

		ino := metadata.NewInode(typ, perm, uint32(*uid), uint32(*gid))
		if err := rt.Store.PutInode(ctx, ino); err != nil {
			return fmt.Errorf("failed to create inode: %w", err)
		}

		unlock := rt.Locks.Lock(ino.ID)
		defer unlock()

		if err := rt.Manager.InitACL(ctx, rt.Opts, mask, ino, parent); err != nil {
			return fmt.Errorf("failed to initialise ACLs of %s: %w", ino.ID, err)
		}
		if err := rt.Store.MarkDirty(ctx, ino); err != nil {
			return fmt.Errorf("failed to persist %s: %w", ino.ID, err)
		}

		logger.Info("Created %s %s in %s with mode %#o", typ, ino.ID, pid, ino.Perm())
		_, _ = fmt.Fprintf(out, "%s %04o\n", ino.ID, ino.Perm())
		return nil
	})
}

// ============================================================================
// stat / getfacl / listxattr
// ============================================================================

func runStat(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs, 0)
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		ino, err := rt.Store.GetInode(ctx, id)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "id:    %s\ntype:  %s\nmode:  %04o\nuid:   %d\ngid:   %d\nctime: %s\n",
			ino.ID, ino.Type, ino.Perm(), ino.UID, ino.GID, ino.Ctime.Format("2006-01-02 15:04:05.000000000 -0700"))
		return nil
	})
}

func runGetfacl(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("getfacl", flag.ContinueOnError)
	g.register(fs)
	accessOnly := fs.Bool("access", false, "Display the access ACL only")
	defaultOnly := fs.Bool("default", false, "Display the default ACL only")
	nfs := fs.Bool("nfs", false, "Write the ACLs in NFSv3 GETACL wire form instead of text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs, 0)
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		ino, err := rt.Store.GetInode(ctx, id)
		if err != nil {
			return err
		}

		var access, def *acl.ACL
		if !*defaultOnly {
			if access, err = rt.Manager.Get(ctx, rt.Opts, ino, acl.TypeAccess); err != nil {
				return err
			}
			if access == nil {
				access = acl.FromMode(ino.Mode)
			}
		}
		if !*accessOnly && ino.IsDir() {
			if def, err = rt.Manager.Get(ctx, rt.Opts, ino, acl.TypeDefault); err != nil {
				return err
			}
		}

		if *nfs {
			return writeNFSACLs(out, rt.Manager.Mapper(), ino, access, def)
		}
		_, _ = io.WriteString(out, formatFacl(ino, access, def))
		return nil
	})
}

// writeNFSACLs writes the access ACL, then the default ACL, as NFSACL
// records. Absent ACLs are skipped: an empty record does not say which type
// it belongs to.
func writeNFSACLs(w io.Writer, m identity.Mapper, ino *metadata.Inode, access, def *acl.ACL) error {
	owner := nfsacl.Owner{UID: ino.UID, GID: ino.GID}
	if access != nil {
		if _, err := nfsacl.Encode(w, access, acl.TypeAccess, owner, m); err != nil {
			return fmt.Errorf("encode access ACL of %s: %w", ino.ID, err)
		}
	}
	if def != nil {
		if _, err := nfsacl.Encode(w, def, acl.TypeDefault, owner, m); err != nil {
			return fmt.Errorf("encode default ACL of %s: %w", ino.ID, err)
		}
	}
	return nil
}

// formatFacl renders ACLs the way getfacl does, including the effective
// rights of entries limited by the mask.
func formatFacl(ino *metadata.Inode, access, def *acl.ACL) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# file: %s\n# owner: %d\n# group: %d\n", ino.ID, ino.UID, ino.GID)
	writeEntries(&b, "", access)
	writeEntries(&b, "default:", def)
	b.WriteString("\n")
	return b.String()
}

func writeEntries(b *strings.Builder, prefix string, a *acl.ACL) {
	if a == nil {
		return
	}

	mask, hasMask := acl.PermAll, false
	for _, e := range a.Entries {
		if e.Tag == acl.TagMask {
			mask, hasMask = e.Perm, true
		}
	}

	for _, e := range a.Entries {
		line := prefix + e.String()
		limited := e.Tag == acl.TagUser || e.Tag == acl.TagGroupObj || e.Tag == acl.TagGroup
		if hasMask && limited && e.Perm&mask != e.Perm {
			line = fmt.Sprintf("%-24s#effective:%s", line, e.Perm&mask)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func runListxattr(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("listxattr", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs, 0)
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		ino, err := rt.Store.GetInode(ctx, id)
		if err != nil {
			return err
		}

		size, err := rt.Xattrs.List(rt.Opts, nil)
		if err != nil {
			return err
		}
		buf := make([]byte, size)
		if _, err := rt.Xattrs.List(rt.Opts, buf); err != nil {
			return err
		}

		// Only report attributes that hold a value, like listxattr(2) on a
		// filesystem that stores ACLs as plain attributes.
		for _, name := range bytes.Split(bytes.TrimSuffix(buf, []byte{0}), []byte{0}) {
			if len(name) == 0 {
				continue
			}
			req := xattr.Request{Opts: rt.Opts, Inode: ino}
			if _, err := rt.Xattrs.Get(ctx, req, string(name), nil); err == nil {
				_, _ = fmt.Fprintln(out, string(name))
			} else if !errors.Is(err, acl.ErrNoData) {
				return err
			}
		}
		return nil
	})
}

// ============================================================================
// setfacl / chmod
// ============================================================================

// xattrUpdate is one attribute write issued by setfacl. A nil value removes
// the attribute.
type xattrUpdate struct {
	name  string
	value []byte
}

func runSetfacl(ctx context.Context, args []string, out io.Writer) error {
	var (
		g      globalFlags
		caller callerFlags
	)
	fs := flag.NewFlagSet("setfacl", flag.ContinueOnError)
	g.register(fs)
	caller.register(fs)
	def := fs.Bool("default", false, "Operate on the default ACL")
	remove := fs.Bool("remove", false, "Remove the ACL instead of replacing it")
	nfsFile := fs.String("nfs", "", "Read the ACLs from `file`, in NFSv3 SETACL wire form")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "Usage: dittoacl setfacl [flags] <inode-id> [acl]")
		_, _ = fmt.Fprintln(fs.Output(), "  acl: e.g. \"u::rw-,u:42:r--,g::r--,m::r--,o::---\"")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs, 0)
	if err != nil {
		return err
	}
	if *nfsFile != "" && (*def || *remove || fs.NArg() > 1) {
		return fmt.Errorf("-nfs takes the ACL types from the file and cannot be combined with an ACL argument")
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		var updates []xattrUpdate
		if *nfsFile != "" {
			data, err := os.ReadFile(*nfsFile)
			if err != nil {
				return err
			}
			if updates, err = readNFSACLs(data, rt.Manager.Mapper()); err != nil {
				return fmt.Errorf("read %s: %w", *nfsFile, err)
			}
		} else {
			u := xattrUpdate{name: metadata.XattrACLAccess}
			if *def {
				u.name = metadata.XattrACLDefault
			}
			if !*remove {
				if fs.NArg() < 2 {
					return fmt.Errorf("missing ACL text")
				}
				a, err := acl.Parse(fs.Arg(1))
				if err != nil {
					return err
				}
				if a == nil {
					return fmt.Errorf("empty ACL; use -remove to delete it")
				}
				if u.value, err = xattrValue(a, rt.Manager.Mapper()); err != nil {
					return err
				}
			}
			updates = append(updates, u)
		}

		unlock := rt.Locks.Lock(id)
		defer unlock()

		ino, err := rt.Store.GetInode(ctx, id)
		if err != nil {
			return err
		}
		req := xattr.Request{Opts: rt.Opts, Auth: caller.auth(ctx), Inode: ino}
		for _, u := range updates {
			if err := rt.Xattrs.Set(ctx, req, u.name, u.value); err != nil {
				return err
			}
			logger.Info("Updated %s of %s, mode is now %#o", u.name, id, ino.Perm())
		}

		_, _ = fmt.Fprintf(out, "%s %04o\n", ino.ID, ino.Perm())
		return nil
	})
}

func xattrValue(a *acl.ACL, m identity.Mapper) ([]byte, error) {
	value := make([]byte, acl.XattrSize(a))
	if _, err := acl.ToXattr(a, m, value); err != nil {
		return nil, err
	}
	return value, nil
}

// readNFSACLs decodes consecutive NFSACL records, as written by
// getfacl -nfs, into attribute writes. Empty records are skipped.
func readNFSACLs(data []byte, m identity.Mapper) ([]xattrUpdate, error) {
	r := bytes.NewReader(data)
	var updates []xattrUpdate
	for r.Len() > 0 {
		a, t, err := nfsacl.Decode(r, m)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		u := xattrUpdate{name: metadata.XattrACLAccess}
		if t == acl.TypeDefault {
			u.name = metadata.XattrACLDefault
		}
		if u.value, err = xattrValue(a, m); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no ACL records")
	}
	return updates, nil
}

func runChmod(ctx context.Context, args []string, out io.Writer) error {
	var (
		g      globalFlags
		caller callerFlags
	)
	fs := flag.NewFlagSet("chmod", flag.ContinueOnError)
	g.register(fs)
	caller.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs, 0)
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("missing mode")
	}
	perm, err := parseMode(fs.Arg(1))
	if err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		unlock := rt.Locks.Lock(id)
		defer unlock()

		ino, err := rt.Store.GetInode(ctx, id)
		if err != nil {
			return err
		}
		if !rt.Authz.IsOwnerOrCapable(caller.auth(ctx), ino) {
			return fmt.Errorf("chmod %s: %w", id, metadata.ErrPermissionDenied)
		}

		ino.Mode = ino.Mode&metadata.ModeTypeMask | perm
		ino.Touch()
		if err := rt.Manager.Chmod(ctx, rt.Opts, ino); err != nil {
			return err
		}
		if err := rt.Store.MarkDirty(ctx, ino); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(out, "%s %04o\n", ino.ID, ino.Perm())
		return nil
	})
}

func runGC(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	g.register(fs)
	dryRun := fs.Bool("dry-run", false, "Report orphaned ACLs without removing them")
	watch := fs.Bool("watch", false, "Keep running the collector configured in the gc section until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return g.withRuntime(ctx, func(rt *config.Runtime) error {
		if *watch {
			if rt.GC == nil {
				return fmt.Errorf("gc -watch needs gc.enabled and a store that can enumerate attributes")
			}
			_, _ = fmt.Fprintln(out, "collector running, interrupt to stop")
			<-ctx.Done()
			return nil
		}

		collector, err := gc.NewCollector(rt.Store, rt.Manager, gc.Config{DryRun: *dryRun})
		if err != nil {
			return err
		}
		stats, err := collector.RunNow(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "scanned %d orphaned %d removed %d failed %d\n",
			stats.ScannedCount, stats.OrphanedCount, stats.DeletedCount, stats.FailedCount)
		return nil
	})
}
