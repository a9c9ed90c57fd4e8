// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
)

// ErrCacheMismatch means a stored entry's input digest does not match
// the inputs that derived its key: a truncated-key collision or a
// corrupted entry. Such an entry is discarded and the result
// recomputed; it is never returned.
var ErrCacheMismatch = errors.New("selection cache digest mismatch")

const (
	tierMemory     = "memory"
	tierPersistent = "persistent"

	cleanupInterval = 5 * time.Minute
	defaultCacheTTL = time.Hour
)

// Entry is one cached selection result together with the full digest
// of the inputs that produced it.
type Entry struct {
	Key         string    `json:"key"`
	InputDigest string    `json:"input_digest"`
	Report      Report    `json:"report"`
	ComputedAt  time.Time `json:"computed_at"`
}

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Mismatches  int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Cache is the two-tier selection result cache: a TTL'd in-memory map
// in front of an optional BadgerDB directory that survives restarts.
// Reads fall through memory to the persistent tier and promote on hit;
// writes land in both.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	nowFn   func() time.Time // expiry clock, replaceable in tests

	db *badger.DB // nil when persistence is disabled

	statsMu sync.Mutex
	stats   Stats

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCache opens the cache tiers. An empty CacheDir keeps results in
// memory only. A background loop sweeps expired memory entries until
// Close is called.
func NewCache(cfg config.SelectionConfig) (*Cache, error) {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	c := &Cache{
		entries: make(map[string]memEntry),
		ttl:     ttl,
		nowFn:   time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	c.stats.LastCleanup = c.nowFn()

	if cfg.CacheDir != "" {
		opts := badger.DefaultOptions(cfg.CacheDir)
		opts.Logger = nil // badger's own logger bypasses zerolog
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open selection cache at %s: %w", cfg.CacheDir, err)
		}
		c.db = db
	}

	go c.cleanupLoop()
	return c, nil
}

// Close stops the cleanup loop and closes the persistent tier.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// GetOrCompute returns the cached report for the inputs or runs compute
// and caches its result in both tiers. A stored entry only counts as a
// hit when its full input digest matches; on mismatch the entry is
// discarded from both tiers and the result recomputed. The second
// return value reports whether the result came from the cache.
func (c *Cache) GetOrCompute(ctx context.Context, inputs KeyInputs, compute func(context.Context) (*Report, error)) (*Report, bool, error) {
	key, err := inputs.CacheKey()
	if err != nil {
		return nil, false, err
	}
	digest, err := inputs.Digest()
	if err != nil {
		return nil, false, err
	}

	if entry, ok := c.getMemory(key); ok {
		if entry.InputDigest == digest {
			c.recordHit()
			metrics.RecordCacheHit(tierMemory)
			report := entry.Report
			return &report, true, nil
		}
		c.invalidate(ctx, key, tierMemory)
	} else if entry, ok := c.getPersistent(ctx, key); ok {
		if entry.InputDigest == digest {
			c.recordHit()
			metrics.RecordCacheHit(tierPersistent)
			c.setMemory(key, entry)
			report := entry.Report
			return &report, true, nil
		}
		c.invalidate(ctx, key, tierPersistent)
	}

	c.recordMiss()
	metrics.RecordCacheMiss()

	report, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	entry := Entry{
		Key:         key,
		InputDigest: digest,
		Report:      *report,
		ComputedAt:  c.nowFn().UTC(),
	}
	c.setMemory(key, entry)
	c.setPersistent(ctx, key, entry)
	return report, false, nil
}

// GetStats returns a copy of the current counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// HitRate returns the hit percentage over all lookups so far.
func (c *Cache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

func (c *Cache) getMemory(key string) (Entry, bool) {
	c.mu.RLock()
	me, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}
	if c.nowFn().After(me.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordEviction()
		return Entry{}, false
	}
	return me.entry, true
}

func (c *Cache) setMemory(key string, entry Entry) {
	c.mu.Lock()
	c.entries[key] = memEntry{entry: entry, expiresAt: c.nowFn().Add(c.ttl)}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.TotalKeys = total
	c.statsMu.Unlock()
}

func (c *Cache) getPersistent(ctx context.Context, key string) (Entry, bool) {
	if c.db == nil {
		return Entry{}, false
	}

	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false
	}
	if err != nil {
		logging.CtxDebug(ctx).Err(err).Str("key", key).Msg("Persistent cache read failed")
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) setPersistent(ctx context.Context, key string, entry Entry) {
	if c.db == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logging.CtxDebug(ctx).Err(err).Str("key", key).Msg("Could not marshal cache entry")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
	if err != nil {
		logging.CtxWarn(ctx).Err(err).Str("key", key).Msg("Persistent cache write failed")
	}
}

// invalidate discards a suspect entry from both tiers. A mismatched
// digest is never served, whatever caused it.
func (c *Cache) invalidate(ctx context.Context, key, tier string) {
	c.mu.Lock()
	delete(c.entries, key)
	total := int64(len(c.entries))
	c.mu.Unlock()

	if c.db != nil {
		err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(key))
		})
		if err != nil {
			logging.CtxWarn(ctx).Err(err).Str("key", key).Msg("Could not delete mismatched cache entry")
		}
	}

	c.statsMu.Lock()
	c.stats.Mismatches++
	c.stats.Evictions++
	c.stats.TotalKeys = total
	c.statsMu.Unlock()

	metrics.RecordCacheInvalidation()
	logging.CtxWarn(ctx).
		Err(ErrCacheMismatch).
		Str("key", key).
		Str("tier", tier).
		Msg("Discarding cache entry with mismatched input digest")
}

func (c *Cache) cleanupLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup drops expired memory entries. The persistent tier expires
// through badger's own TTL handling.
func (c *Cache) cleanup() {
	now := c.nowFn()

	c.mu.Lock()
	var evictions int64
	for key, me := range c.entries {
		if now.After(me.expiresAt) {
			delete(c.entries, key)
			evictions++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evictions
	c.stats.TotalKeys = total
	c.stats.LastCleanup = now
	c.statsMu.Unlock()
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}
