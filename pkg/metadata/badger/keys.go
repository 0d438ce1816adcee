package badger

import (
	"github.com/google/uuid"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize the
// two data types into logical namespaces:
//
// Data Type             Prefix   Key Format                  Value Type
// ======================================================================
// Inode Data            "i:"     i:<uuid>                    inode (JSON)
// Extended Attributes   "x:"     x:<uuid>:<name>             raw bytes
//
// 1. Inode Data (i:)
//    - One entry per inode
//    - Point lookup by UUID: O(1)
//    - Example: i:550e8400-e29b-41d4-a716-446655440000
//
// 2. Extended Attributes (x:)
//    - One entry per (inode, attribute name)
//    - Values are stored verbatim; the ACL layer owns their encoding
//    - All attributes share the prefix "x:", so the collector can range-scan
//      them in one pass
//    - Example: x:550e8400-e29b-41d4-a716-446655440000:system.posix_acl_access

const (
	prefixInode = "i:"
	prefixXattr = "x:"
)

// keyInode generates the key for an inode record.
func keyInode(id uuid.UUID) []byte {
	return []byte(prefixInode + id.String())
}

// keyXattr generates the key for one extended attribute of an inode.
func keyXattr(id uuid.UUID, name string) []byte {
	return []byte(prefixXattr + id.String() + ":" + name)
}

// parseXattrKey splits an attribute key back into inode id and name.
func parseXattrKey(key []byte) (uuid.UUID, string, bool) {
	const idLen = 36
	rest := key[len(prefixXattr):]
	if len(rest) < idLen+2 || rest[idLen] != ':' {
		return uuid.UUID{}, "", false
	}
	id, err := uuid.ParseBytes(rest[:idLen])
	if err != nil {
		return uuid.UUID{}, "", false
	}
	return id, string(rest[idLen+1:]), true
}
