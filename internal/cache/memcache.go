package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcache is a Cache backed by a shared memcached cluster (spec §5
// "HTTP translator's affinity cache: shared (memcached)"), addressed by
// the host:port list from opensrf.settings.host_config's
// cache.global.servers.server (spec §6).
type Memcache struct {
	client *memcache.Client
}

// NewMemcache dials servers (host:port strings).
func NewMemcache(servers ...string) *Memcache {
	return &Memcache{client: memcache.New(servers...)}
}

func (c *Memcache) Get(key string) ([]byte, bool) {
	item, err := c.client.Get(key)
	if err != nil {
		return nil, false
	}
	return item.Value, true
}

func (c *Memcache) Put(key string, value []byte, ttl time.Duration) {
	_ = c.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
}

func (c *Memcache) Delete(key string) {
	_ = c.client.Delete(key)
}
