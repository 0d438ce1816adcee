package cache

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string) *acl.ACL {
	t.Helper()
	a, err := acl.Parse(text)
	require.NoError(t, err)
	return a
}

func TestCache_States(t *testing.T) {
	c := New(16)
	id := uuid.New()

	got, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, NotCached, state)
	assert.Nil(t, got)

	c.Store(id, acl.TypeAccess, nil)
	got, state = c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Absent, state)
	assert.Nil(t, got)

	a := parse(t, "u::rwx,u:42:r--,g::r-x,m::r-x,o::---")
	c.Store(id, acl.TypeAccess, a)
	got, state = c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
	assert.True(t, a.Equal(got))

	// the other type of the same inode is untouched
	_, state = c.Lookup(id, acl.TypeDefault)
	assert.Equal(t, NotCached, state)
}

func TestCache_Copies(t *testing.T) {
	c := New(16)
	id := uuid.New()
	a := parse(t, "u::rwx,g::r-x,o::---")

	c.Store(id, acl.TypeDefault, a)
	a.Entries[0].Perm = 0

	got, _ := c.Lookup(id, acl.TypeDefault)
	assert.Equal(t, acl.PermAll, got.Entries[0].Perm)

	got.Entries[0].Perm = 0
	again, _ := c.Lookup(id, acl.TypeDefault)
	assert.Equal(t, acl.PermAll, again.Entries[0].Perm)
}

func TestCache_Forget(t *testing.T) {
	c := New(16)
	id := uuid.New()
	other := uuid.New()

	c.Store(id, acl.TypeAccess, nil)
	c.Store(id, acl.TypeDefault, parse(t, "u::rwx,g::r-x,o::---"))
	c.Store(other, acl.TypeAccess, nil)

	c.Forget(id)

	_, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, NotCached, state)
	_, state = c.Lookup(id, acl.TypeDefault)
	assert.Equal(t, NotCached, state)
	_, state = c.Lookup(other, acl.TypeAccess)
	assert.Equal(t, Absent, state)
}

func TestCache_Eviction(t *testing.T) {
	c := New(2)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		c.Store(id, acl.TypeAccess, nil)
	}

	_, state := c.Lookup(ids[0], acl.TypeAccess)
	assert.Equal(t, NotCached, state)
	_, state = c.Lookup(ids[2], acl.TypeAccess)
	assert.Equal(t, Absent, state)
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	id := uuid.New()

	c.Store(id, acl.TypeAccess, nil)
	_, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, NotCached, state)
	c.Forget(id)

	tok := c.Begin(id, acl.TypeAccess)
	assert.Equal(t, Token(0), tok)
	assert.False(t, c.Commit(id, acl.TypeAccess, tok, nil))
	c.Abort(id, acl.TypeAccess, tok)
}

// ============================================================================
// Fill Tests
// ============================================================================

func TestCache_FillCommits(t *testing.T) {
	c := New(16)
	id := uuid.New()
	a := parse(t, "u::rw-,u:42:r--,g::r--,m::r--,o::---")

	tok := c.Begin(id, acl.TypeAccess)
	_, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, NotCached, state, "a pending fill is not a cached value")

	require.True(t, c.Commit(id, acl.TypeAccess, tok, a))
	got, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
	assert.True(t, a.Equal(got))

	// a token commits at most once
	assert.False(t, c.Commit(id, acl.TypeAccess, tok, nil))
	_, state = c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
}

func TestCache_FillLosesToStore(t *testing.T) {
	c := New(16)
	id := uuid.New()
	a := parse(t, "u::rw-,u:42:r--,g::r--,m::r--,o::---")

	tok := c.Begin(id, acl.TypeAccess)
	c.Store(id, acl.TypeAccess, a)

	// the reader saw the store before the write and found nothing
	assert.False(t, c.Commit(id, acl.TypeAccess, tok, nil))

	got, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
	assert.True(t, a.Equal(got))
}

func TestCache_FillLosesToInvalidate(t *testing.T) {
	c := New(16)
	id := uuid.New()

	tok := c.Begin(id, acl.TypeDefault)
	c.Invalidate(id, acl.TypeDefault)

	assert.False(t, c.Commit(id, acl.TypeDefault, tok, nil))
	_, state := c.Lookup(id, acl.TypeDefault)
	assert.Equal(t, NotCached, state)
}

func TestCache_FillLosesToLaterFill(t *testing.T) {
	c := New(16)
	id := uuid.New()
	a := parse(t, "u::rwx,g::r-x,o::---")

	first := c.Begin(id, acl.TypeAccess)
	second := c.Begin(id, acl.TypeAccess)
	assert.NotEqual(t, first, second)

	assert.False(t, c.Commit(id, acl.TypeAccess, first, nil))
	assert.True(t, c.Commit(id, acl.TypeAccess, second, a))

	_, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
}

func TestCache_Abort(t *testing.T) {
	c := New(16)
	id := uuid.New()

	tok := c.Begin(id, acl.TypeAccess)
	c.Abort(id, acl.TypeAccess, tok)
	_, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, NotCached, state)
	assert.False(t, c.Commit(id, acl.TypeAccess, tok, nil))

	// an abort arriving after a Store leaves the stored value in place
	tok = c.Begin(id, acl.TypeAccess)
	c.Store(id, acl.TypeAccess, nil)
	c.Abort(id, acl.TypeAccess, tok)
	_, state = c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Absent, state)
}

func TestCache_Concurrent(t *testing.T) {
	c := New(64)
	id := uuid.New()
	a := parse(t, "u::rwx,g::r-x,o::---")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				c.Store(id, acl.TypeAccess, a)
			} else {
				c.Lookup(id, acl.TypeAccess)
			}
		}()
	}
	wg.Wait()

	got, state := c.Lookup(id, acl.TypeAccess)
	assert.Equal(t, Cached, state)
	assert.True(t, a.Equal(got))
}
