package scoring

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotCache is a read-through cache of scored universes. Entries are
// stored msgpack-encoded so every read decodes a fresh copy; callers can
// never mutate a cached snapshot. Cleared whenever weights change.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	log     zerolog.Logger
}

// NewSnapshotCache creates an empty snapshot cache
func NewSnapshotCache(log zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string][]byte),
		log:     log.With().Str("component", "score_cache").Logger(),
	}
}

// Key builds a cache key from the query parameters
func (c *SnapshotCache) Key(strategy Strategy, date string, limit int, industry, sector string) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", strategy, date, limit, industry, sector)
}

// Get decodes a cached snapshot, reporting whether the key was present
func (c *SnapshotCache) Get(key string) ([]ScoredStock, bool) {
	c.mu.RLock()
	encoded, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var snapshot []ScoredStock
	if err := msgpack.Unmarshal(encoded, &snapshot); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached snapshot, evicting")
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	return snapshot, true
}

// Put encodes and stores a snapshot
func (c *SnapshotCache) Put(key string, snapshot []ScoredStock) {
	encoded, err := msgpack.Marshal(snapshot)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode snapshot, skipping cache")
		return
	}

	c.mu.Lock()
	c.entries[key] = encoded
	c.mu.Unlock()
}

// Clear drops every cached snapshot
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string][]byte)
	c.mu.Unlock()

	if n > 0 {
		c.log.Debug().Int("entries", n).Msg("Cleared score cache")
	}
}

// Size returns the number of cached snapshots
func (c *SnapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
