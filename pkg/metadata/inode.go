package metadata

import (
	"time"

	"github.com/google/uuid"
)

// FileType represents the type of a filesystem object.
type FileType int

const (
	// FileTypeRegular is a regular file containing data
	FileTypeRegular FileType = iota

	// FileTypeDirectory is a directory (container for other files)
	FileTypeDirectory

	// FileTypeSymlink is a symbolic link (contains a path to another file)
	FileTypeSymlink

	// FileTypeBlockDevice is a block device (disk, partition, etc.)
	FileTypeBlockDevice

	// FileTypeCharDevice is a character device (terminal, serial port, etc.)
	FileTypeCharDevice

	// FileTypeSocket is a Unix domain socket (IPC endpoint)
	FileTypeSocket

	// FileTypeFIFO is a named pipe (FIFO for IPC)
	FileTypeFIFO
)

// Unix mode type bits.
const (
	ModeTypeMask  uint32 = 0o170000
	ModeSocket    uint32 = 0o140000
	ModeSymlink   uint32 = 0o120000
	ModeRegular   uint32 = 0o100000
	ModeBlock     uint32 = 0o060000
	ModeDirectory uint32 = 0o040000
	ModeChar      uint32 = 0o020000
	ModeFIFO      uint32 = 0o010000

	// ModePermMask covers permission and special bits (setuid, setgid, sticky)
	ModePermMask uint32 = 0o7777
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "regular"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	case FileTypeBlockDevice:
		return "block"
	case FileTypeCharDevice:
		return "char"
	case FileTypeSocket:
		return "socket"
	case FileTypeFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ModeBits returns the Unix S_IF* bits for t.
func (t FileType) ModeBits() uint32 {
	switch t {
	case FileTypeDirectory:
		return ModeDirectory
	case FileTypeSymlink:
		return ModeSymlink
	case FileTypeBlockDevice:
		return ModeBlock
	case FileTypeCharDevice:
		return ModeChar
	case FileTypeSocket:
		return ModeSocket
	case FileTypeFIFO:
		return ModeFIFO
	default:
		return ModeRegular
	}
}

// ParseFileType maps a name accepted on the command line to a FileType.
func ParseFileType(s string) (FileType, bool) {
	switch s {
	case "regular", "file", "f":
		return FileTypeRegular, true
	case "directory", "dir", "d":
		return FileTypeDirectory, true
	case "symlink", "link", "l":
		return FileTypeSymlink, true
	case "block", "b":
		return FileTypeBlockDevice, true
	case "char", "c":
		return FileTypeCharDevice, true
	case "socket", "s":
		return FileTypeSocket, true
	case "fifo", "p":
		return FileTypeFIFO, true
	}
	return FileTypeRegular, false
}

// Inode holds the metadata of one filesystem object.
//
// Mode carries the full Unix mode, type bits included, so it can be handed
// to the ACL equivalence rules unchanged. ACLs themselves are not part of
// the inode; they live in the attribute store under the inode ID.
type Inode struct {
	// ID is the stable identifier of the inode
	ID uuid.UUID `json:"id"`

	// Type is the file type
	Type FileType `json:"type"`

	// Mode is the Unix mode (type bits plus permission bits)
	Mode uint32 `json:"mode"`

	// UID is the owner user ID
	UID uint32 `json:"uid"`

	// GID is the owner group ID
	GID uint32 `json:"gid"`

	// Atime is the last access time
	Atime time.Time `json:"atime"`

	// Mtime is the last data modification time
	Mtime time.Time `json:"mtime"`

	// Ctime is the last metadata change time
	Ctime time.Time `json:"ctime"`
}

// NewInode returns an inode of type t with the permission bits of perm.
// Timestamps are set to now and a fresh ID is allocated.
func NewInode(t FileType, perm uint32, uid, gid uint32) *Inode {
	now := time.Now()
	return &Inode{
		ID:    uuid.New(),
		Type:  t,
		Mode:  t.ModeBits() | perm&ModePermMask,
		UID:   uid,
		GID:   gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Type == FileTypeDirectory
}

// IsSymlink reports whether the inode is a symbolic link.
func (i *Inode) IsSymlink() bool {
	return i.Type == FileTypeSymlink
}

// Perm returns the permission and special bits of the mode.
func (i *Inode) Perm() uint32 {
	return i.Mode & ModePermMask
}

// Touch records a metadata change.
func (i *Inode) Touch() {
	i.Ctime = time.Now()
}

// Clone returns a copy of i.
func (i *Inode) Clone() *Inode {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
