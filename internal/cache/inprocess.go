package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   []byte
	expires time.Time
}

// InProcess is a single-process Cache backed by an LRU, useful for
// local development and for the translator's own process when no
// shared memcached is configured. Entries past their TTL are treated as
// absent on Get and lazily evicted.
type InProcess struct {
	lru *lru.Cache[string, entry]
}

// NewInProcess creates an in-process cache holding up to size entries.
func NewInProcess(size int) (*InProcess, error) {
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &InProcess{lru: l}, nil
}

func (c *InProcess) Get(key string) ([]byte, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *InProcess) Put(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry{value: value, expires: expires})
}

func (c *InProcess) Delete(key string) {
	c.lru.Remove(key)
}
