package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Serialization Strategy
// ======================
//
// Inodes are stored as JSON: human-readable and tolerant of added fields.
// Extended attribute values are already opaque byte strings and are stored
// as-is.

// encodeInode serializes an inode to JSON.
func encodeInode(ino *metadata.Inode) ([]byte, error) {
	data, err := json.Marshal(ino)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode: %w", err)
	}
	return data, nil
}

// decodeInode deserializes an inode from JSON.
func decodeInode(data []byte) (*metadata.Inode, error) {
	var ino metadata.Inode
	if err := json.Unmarshal(data, &ino); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &ino, nil
}
