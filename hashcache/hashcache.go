// Package hashcache replaces the original source's in-place "static_hash"
// partial-SHA256 caching (mutating a Block in place to remember work done
// toward its own hash) with the immutable-blocks-plus-side-cache shape
// Design Notes §9 asks for: blocks never carry cached state, and a bounded
// LRU keyed by header preimage sits beside them instead.
package hashcache

import (
	"github.com/decred/dcrd/lru"
)

// entry is the cache key: the canonical header preimage prefix plus the
// varying-field value that was hashed against it.
type entry struct {
	prefix  string
	varying string
}

// Cache is a bounded LRU of header preimage -> header digest. It is safe
// for concurrent use; lru.Map serializes its own internal state.
type Cache struct {
	m *lru.Map[entry, [32]byte]
}

// New returns a Cache holding at most limit entries.
func New(limit uint) *Cache {
	return &Cache{m: lru.NewMap[entry, [32]byte](limit)}
}

// Get returns the cached digest for (prefix, varying), if present.
func (c *Cache) Get(prefix, varying string) ([32]byte, bool) {
	return c.m.Lookup(entry{prefix: prefix, varying: varying})
}

// Put records the digest computed for (prefix, varying).
func (c *Cache) Put(prefix, varying string, digest [32]byte) {
	c.m.Add(entry{prefix: prefix, varying: varying}, digest)
}
