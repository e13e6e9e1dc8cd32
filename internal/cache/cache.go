// Package cache provides the two process-lifetime caches of the enrichment
// engine. Entries are bounded by an LRU so long batches cannot grow memory
// without limit, and lookups are coalesced so at most one network call per
// key is ever outstanding.
package cache

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultEntries bounds each cache when no explicit capacity is configured.
const DefaultEntries = 100_000

// LRU is a mutex-guarded least-recently-used map.
type LRU struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[string]*list.Element
}

type entry struct {
	key string
	val any
}

func NewLRU(max int) *LRU {
	if max <= 0 {
		max = DefaultEntries
	}
	return &LRU{
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).val, true
}

func (c *LRU) Add(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).val = val
		return
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, val: val})
	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Loader couples an LRU with request coalescing: concurrent misses on the
// same key share a single invocation of fill.
type Loader struct {
	cache *LRU
	group singleflight.Group
}

func NewLoader(max int) *Loader {
	return &Loader{cache: NewLRU(max)}
}

// Do returns the cached value for key, or runs fill once (shared across
// concurrent callers) and caches its result. Errors are not cached.
func (l *Loader) Do(key string, fill func() (any, error)) (any, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := fill()
		if err != nil {
			return nil, err
		}
		l.cache.Add(key, v)
		return v, nil
	})
	return v, err
}
