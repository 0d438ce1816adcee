package testing

import (
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// DefaultDirInode creates a directory inode with sensible test defaults.
func DefaultDirInode() *metadata.Inode {
	return metadata.NewInode(metadata.FileTypeDirectory, 0o755, 1000, 1000)
}

// DefaultFileInode creates a regular file inode with sensible test defaults.
func DefaultFileInode() *metadata.Inode {
	return metadata.NewInode(metadata.FileTypeRegular, 0o644, 1000, 1000)
}
