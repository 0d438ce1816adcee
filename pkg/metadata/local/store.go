//go:build !windows

package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

// inodeAttr holds the JSON-encoded inode on its carrier file.
const inodeAttr = "inode"

// LocalMetadataStore implements metadata.Store on the extended attributes
// of a host directory.
//
// Every inode is backed by an empty carrier file <root>/<uuid>. The inode
// record and every attribute live in the "user." xattr namespace of that
// file, under Namespace:
//
//	user.dittoacl.inode                    inode (JSON)
//	user.dittoacl.system.posix_acl_access  ACL (binary encoding)
//
// The host filesystem must support user extended attributes (ext4, xfs,
// btrfs, tmpfs on recent kernels).
type LocalMetadataStore struct {
	root      string
	namespace string
}

// LocalMetadataStoreConfig contains configuration for the local store.
type LocalMetadataStoreConfig struct {
	// Root is the directory holding the carrier files. It is created if
	// missing.
	Root string `mapstructure:"root" validate:"required"`

	// Namespace prefixes every attribute name (default: "user.dittoacl.")
	Namespace string `mapstructure:"namespace"`
}

// NewLocalMetadataStore creates the root directory if needed and checks
// that it accepts extended attributes.
func NewLocalMetadataStore(ctx context.Context, cfg LocalMetadataStoreConfig) (*LocalMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "user.dittoacl."
	}

	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", cfg.Root, err)
	}

	probe := ns + "probe"
	if err := xattr.Set(cfg.Root, probe, []byte{1}); err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			return nil, fmt.Errorf("%s does not support extended attributes: %w", cfg.Root, metadata.ErrNotSupported)
		}
		return nil, fmt.Errorf("failed to probe extended attributes on %s: %w", cfg.Root, err)
	}
	_ = xattr.Remove(cfg.Root, probe)

	logger.Debug("Opened local metadata store at %q", cfg.Root)
	return &LocalMetadataStore{root: cfg.Root, namespace: ns}, nil
}

func (s *LocalMetadataStore) path(id uuid.UUID) string {
	return filepath.Join(s.root, id.String())
}

// carrier returns the carrier file path for id, creating the file if needed.
func (s *LocalMetadataStore) carrier(id uuid.UUID) (string, error) {
	p := s.path(id)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return "", err
	}
	return p, f.Close()
}

// isNoData reports whether err means "attribute or carrier file missing".
func isNoData(err error) bool {
	var xerr *xattr.Error
	if errors.As(err, &xerr) {
		return errors.Is(xerr.Err, xattr.ENOATTR) || errors.Is(xerr.Err, unix.ENOENT)
	}
	return false
}

// ============================================================================
// Inodes
// ============================================================================

// GetInode implements metadata.InodeStore.
func (s *LocalMetadataStore) GetInode(ctx context.Context, id uuid.UUID) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := xattr.Get(s.path(id), s.namespace+inodeAttr)
	if isNoData(err) {
		return nil, metadata.NewNotFoundError(id.String())
	}
	if err != nil {
		return nil, metadata.NewIOError(id.String(), err)
	}

	var ino metadata.Inode
	if err := json.Unmarshal(data, &ino); err != nil {
		return nil, metadata.NewIOError(id.String(), fmt.Errorf("failed to decode inode: %w", err))
	}
	return &ino, nil
}

// PutInode implements metadata.InodeStore.
func (s *LocalMetadataStore) PutInode(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.carrier(ino.ID)
	if err != nil {
		return metadata.NewIOError(ino.ID.String(), err)
	}
	data, err := json.Marshal(ino)
	if err != nil {
		return fmt.Errorf("failed to encode inode: %w", err)
	}

	err = xattr.SetWithFlags(p, s.namespace+inodeAttr, data, xattr.XATTR_CREATE)
	if errors.Is(err, unix.EEXIST) {
		return &metadata.StoreError{Code: metadata.CodeAlreadyExists, ID: ino.ID.String()}
	}
	if err != nil {
		return metadata.NewIOError(ino.ID.String(), err)
	}
	return nil
}

// MarkDirty implements metadata.InodeStore.
func (s *LocalMetadataStore) MarkDirty(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.carrier(ino.ID)
	if err != nil {
		return metadata.NewIOError(ino.ID.String(), err)
	}
	data, err := json.Marshal(ino)
	if err != nil {
		return fmt.Errorf("failed to encode inode: %w", err)
	}
	if err := xattr.Set(p, s.namespace+inodeAttr, data); err != nil {
		return metadata.NewIOError(ino.ID.String(), err)
	}
	return nil
}

// ============================================================================
// Extended Attributes
// ============================================================================

// GetXattr implements metadata.AttributeStore.
func (s *LocalMetadataStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := xattr.Get(s.path(id), s.namespace+name)
	if isNoData(err) {
		return nil, metadata.ErrNoData
	}
	if err != nil {
		return nil, metadata.NewIOError(id.String(), err)
	}
	return value, nil
}

// SetXattr implements metadata.AttributeStore.
func (s *LocalMetadataStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if value == nil {
		err := xattr.Remove(s.path(id), s.namespace+name)
		if err != nil && !isNoData(err) {
			return metadata.NewIOError(id.String(), err)
		}
		return nil
	}

	p, err := s.carrier(id)
	if err != nil {
		return metadata.NewIOError(id.String(), err)
	}
	if err := xattr.Set(p, s.namespace+name, value); err != nil {
		return metadata.NewIOError(id.String(), err)
	}
	return nil
}

// ScanXattrs implements metadata.AttributeScanner by listing the carrier
// files under the root. Files whose name is not an inode id are ignored.
func (s *LocalMetadataStore) ScanXattrs(ctx context.Context, fn func(id uuid.UUID, names []string) error) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return metadata.NewIOError("scan", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil || !entry.Type().IsRegular() {
			continue
		}

		raw, err := xattr.List(filepath.Join(s.root, entry.Name()))
		if isNoData(err) {
			continue
		}
		if err != nil {
			return metadata.NewIOError(id.String(), err)
		}

		var names []string
		for _, name := range raw {
			name, ok := strings.CutPrefix(name, s.namespace)
			if !ok || name == inodeAttr {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			continue
		}
		if err := fn(id, names); err != nil {
			return err
		}
	}
	return nil
}

// Close implements metadata.Store. It is a no-op.
func (s *LocalMetadataStore) Close() error {
	return nil
}
