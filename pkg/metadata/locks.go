package metadata

import (
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// InodeLocks is a striped per-inode mutex table.
//
// Callers hold the lock of an inode across ACL Set, InitACL and Chmod so
// that the mode update and the attribute write are observed together.
// Distinct inodes may share a stripe; the zero value is ready to use.
type InodeLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *InodeLocks) stripe(id uuid.UUID) *sync.Mutex {
	var h uint32
	for _, b := range id {
		h = h*31 + uint32(b)
	}
	return &l.stripes[h%lockStripes]
}

// Lock acquires the lock for id and returns the matching unlock function.
//
//	unlock := locks.Lock(ino.ID)
//	defer unlock()
func (l *InodeLocks) Lock(id uuid.UUID) func() {
	mu := l.stripe(id)
	mu.Lock()
	return mu.Unlock
}
