package pool

import (
	lru "github.com/hashicorp/golang-lru"
)

// freeList is a bounded FIFO of idle connections. Entries are only ever
// added as newest and taken as oldest, so the LRU order is insertion order.
type freeList struct {
	cache    *lru.Cache
	capacity int
}

func newFreeList(capacity int) *freeList {
	if capacity < 1 {
		capacity = 1
	}
	cache, err := lru.New(capacity)
	if err != nil {
		// lru.New fails only for a non-positive size.
		panic(err)
	}
	return &freeList{cache: cache, capacity: capacity}
}

// push appends conn as the newest entry. When the list is full the oldest
// entry is removed and returned; the caller must close it.
func (f *freeList) push(conn Conn) (evicted Conn) {
	if f.cache.Len() >= f.capacity {
		if key, _, ok := f.cache.RemoveOldest(); ok {
			evicted = key.(Conn)
		}
	}
	f.cache.Add(conn, struct{}{})
	return evicted
}

// pop removes and returns the oldest entry.
func (f *freeList) pop() (Conn, bool) {
	key, _, ok := f.cache.RemoveOldest()
	if !ok {
		return nil, false
	}
	return key.(Conn), true
}

func (f *freeList) remove(conn Conn) bool {
	return f.cache.Remove(conn)
}

func (f *freeList) contains(conn Conn) bool {
	return f.cache.Contains(conn)
}

// snapshot returns the entries oldest first.
func (f *freeList) snapshot() []Conn {
	keys := f.cache.Keys()
	conns := make([]Conn, 0, len(keys))
	for _, k := range keys {
		conns = append(conns, k.(Conn))
	}
	return conns
}

func (f *freeList) len() int {
	return f.cache.Len()
}
