// Package cache implements the Cache contract of spec §6, consumed only
// by the HTTP translator's affinity cache (spec §4.7, §5). Grounded on
// the teacher's in-memory repository shape
// (internal/infrastructure/server/inmemory.go) for the local
// implementation, generalized to the original's get/put-with-ttl/delete
// interface instead of a typed repository per entity.
package cache

import (
	"encoding/json"
	"time"
)

// Cache is the external collaborator contract (spec §6): values are
// JSON-encoded by the caller before Put and decoded by the caller after
// Get.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Affinity is the thread -> (remote_ip, jid) record the HTTP translator
// caches so a later request bearing X-OpenSRF-to can be verified against
// the drone that actually answered (spec §4.7, §8 law 7).
type Affinity struct {
	RemoteIP string `json:"ip"`
	JID      string `json:"jid"`
}

// PutAffinity JSON-encodes aff and stores it under thread with the given
// TTL (spec §4.7 "cache thread -> {ip, jid} with TTL 300s").
func PutAffinity(c Cache, thread string, aff Affinity, ttl time.Duration) error {
	data, err := json.Marshal(aff)
	if err != nil {
		return err
	}
	c.Put(thread, data, ttl)
	return nil
}

// GetAffinity decodes the affinity record cached for thread, if any.
func GetAffinity(c Cache, thread string) (Affinity, bool) {
	data, ok := c.Get(thread)
	if !ok {
		return Affinity{}, false
	}
	var aff Affinity
	if err := json.Unmarshal(data, &aff); err != nil {
		return Affinity{}, false
	}
	return aff, true
}
