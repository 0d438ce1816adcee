// Package cache holds decoded ACLs per inode so that repeated permission
// checks do not re-read and re-decode the attribute store.
//
// Each (inode, type) slot is in one of three states. NotCached means the
// store must be consulted. Absent means the store was read and holds no ACL
// for the slot; it is distinct from NotCached so that inodes without ACLs
// (the common case) do not pay a store read on every lookup. Cached holds a
// decoded value.
//
// A reader filling a slot after a miss must not overwrite a value stored by
// a writer that finished in the meantime. Readers therefore call Begin
// before reading the store and Commit afterwards; Commit only succeeds if
// no Store, Invalidate or other Begin touched the slot in between.
package cache

import (
	"sync"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/acl"
)

// DefaultSize is the number of slots kept when no size is configured.
const DefaultSize = 4096

// State is the cache state of a slot.
type State int

const (
	NotCached State = iota
	Absent
	Cached
)

func (s State) String() string {
	switch s {
	case NotCached:
		return "not_cached"
	case Absent:
		return "absent"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

type key struct {
	id  uuid.UUID
	typ acl.Type
}

// slot is a cache entry. A non-zero fill marks a reader's pending fill; such
// a slot looks NotCached to Lookup.
type slot struct {
	acl  *acl.ACL
	fill uint64
}

// Token identifies a pending fill started by Begin. The zero Token never
// commits.
type Token uint64

// Cache is an LRU of decoded ACLs keyed by inode and ACL type.
//
// All methods are safe for concurrent use. Updates are synchronous: once
// Store returns, every Lookup observes the new value. A nil *Cache is valid
// and caches nothing.
type Cache struct {
	lru gcache.Cache

	// mu orders Begin, Commit and Store on top of gcache's own locking
	mu       sync.Mutex
	lastFill uint64
}

// New creates a cache holding at most size slots. A non-positive size
// selects DefaultSize.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache{lru: gcache.New(size).LRU().Build()}
}

// Lookup returns the slot state for (id, t) and, when Cached, a copy of the
// ACL.
func (c *Cache) Lookup(id uuid.UUID, t acl.Type) (*acl.ACL, State) {
	if c == nil {
		return nil, NotCached
	}

	v, err := c.lru.Get(key{id, t})
	if err != nil {
		return nil, NotCached
	}
	s := v.(slot)
	if s.fill != 0 {
		return nil, NotCached
	}
	if s.acl == nil {
		return nil, Absent
	}
	return s.acl.Clone(), Cached
}

// Store records the outcome of a successful write: a nil ACL marks the
// slot Absent. It always wins over a pending fill. The cache keeps its own
// copy of a.
func (c *Cache) Store(id uuid.UUID, t acl.Type, a *acl.ACL) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key{id, t}, slot{acl: a.Clone()})
}

// Begin marks (id, t) as being filled by the caller and returns the token
// to pass to Commit once the store has been read.
func (c *Cache) Begin(id uuid.UUID, t acl.Type) Token {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFill++
	c.set(key{id, t}, slot{fill: c.lastFill})
	return Token(c.lastFill)
}

// Commit stores the outcome of the read started with tok, unless the slot
// changed since Begin. It reports whether the value was stored.
func (c *Cache) Commit(id uuid.UUID, t acl.Type, tok Token, a *acl.ACL) bool {
	if c == nil || tok == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pending(key{id, t}, tok) {
		return false
	}
	c.set(key{id, t}, slot{acl: a.Clone()})
	return true
}

// Abort drops the pending fill tok after a failed read, leaving the slot
// NotCached. Slots changed since Begin are left alone.
func (c *Cache) Abort(id uuid.UUID, t acl.Type, tok Token) {
	if c == nil || tok == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending(key{id, t}, tok) {
		c.lru.Remove(key{id, t})
	}
}

// pending reports whether k still holds the fill started with tok. The
// caller holds mu.
func (c *Cache) pending(k key, tok Token) bool {
	v, err := c.lru.GetIFPresent(k)
	return err == nil && v.(slot).fill == uint64(tok)
}

func (c *Cache) set(k key, s slot) {
	// gcache only fails Set on a nil key or a closed loader, neither of
	// which applies here.
	_ = c.lru.Set(k, s)
}

// Invalidate resets (id, t) to NotCached and cancels any pending fill.
func (c *Cache) Invalidate(id uuid.UUID, t acl.Type) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key{id, t})
}

// Forget drops both slots of an inode, as when the inode is evicted.
func (c *Cache) Forget(id uuid.UUID) {
	c.Invalidate(id, acl.TypeAccess)
	c.Invalidate(id, acl.TypeDefault)
}
