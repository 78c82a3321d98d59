// Package cache keeps retrieved content in memory, keyed by fingerprint.
// Content addressed by a fingerprint never changes, so entries are only
// evicted for space or age.
package cache

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/errors"
)

const (
	// shards must be a power of two. Each shard holds MaxMB/shards of data,
	// which caps the largest cacheable object.
	shards = 16

	flagVerified byte = 1 << 0
)

// ErrEntryTooLarge is returned by Set for objects the cache will not hold.
var ErrEntryTooLarge = fmt.Errorf("entry too large for cache")

// Options sizes the cache. MaxMB of zero leaves it unbounded.
type Options struct {
	MaxMB         int
	TTL           time.Duration
	MaxEntryBytes int64
}

// Entry is a cached object.
type Entry struct {
	Data        []byte
	ContentType string
	// Verified is set when the bytes were checked against their fingerprint.
	Verified bool
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// ContentCache is a bigcache-backed store of retrieved objects.
type ContentCache struct {
	cache    *bigcache.BigCache
	maxEntry int64
}

// New creates a content cache. The context stops background cleanup.
func New(ctx context.Context, opts Options) (*ContentCache, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = shards
	cfg.MaxEntriesInWindow = 256
	cfg.MaxEntrySize = 16 << 10
	cfg.CleanWindow = max(ttl/2, time.Second)
	cfg.HardMaxCacheSize = opts.MaxMB
	cfg.Verbose = false
	cfg.StatsEnabled = false

	maxEntry := opts.MaxEntryBytes
	if opts.MaxMB > 0 {
		perShard := int64(opts.MaxMB) << 20 / shards
		if maxEntry <= 0 || maxEntry > perShard {
			maxEntry = perShard
		}
	}

	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create content cache")
	}
	return &ContentCache{cache: bc, maxEntry: maxEntry}, nil
}

// Get returns the cached entry for key.
func (c *ContentCache) Get(key string) (Entry, bool) {
	raw, err := c.cache.Get(key)
	if err != nil {
		if !stderrors.Is(err, bigcache.ErrEntryNotFound) {
			logger.Warn("content cache read failed", logger.Fields{"key": key, "error": err.Error()})
		}
		return Entry{}, false
	}
	e, err := decode(raw)
	if err != nil {
		logger.Warn("dropping corrupt cache entry", logger.Fields{"key": key, "error": err.Error()})
		_ = c.cache.Delete(key)
		return Entry{}, false
	}
	return e, true
}

// Set stores e under key. A verified entry is never replaced by an unverified one.
func (c *ContentCache) Set(key string, e Entry) error {
	if c.maxEntry > 0 && int64(len(e.Data)) > c.maxEntry {
		return fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, len(e.Data))
	}
	if !e.Verified {
		if cur, ok := c.Get(key); ok && cur.Verified {
			return nil
		}
	}
	if err := c.cache.Set(key, encode(e)); err != nil {
		return errors.Wrap(err, "failed to cache content")
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (c *ContentCache) Delete(key string) {
	_ = c.cache.Delete(key)
}

// Stats returns the entry count and hit counters.
func (c *ContentCache) Stats() Stats {
	s := c.cache.Stats()
	return Stats{Entries: c.cache.Len(), Hits: s.Hits, Misses: s.Misses}
}

// Close releases the cache.
func (c *ContentCache) Close() error {
	return c.cache.Close()
}

// entry layout: flags | uvarint(len(contentType)) | contentType | data
func encode(e Entry) []byte {
	var flags byte
	if e.Verified {
		flags |= flagVerified
	}
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(e.ContentType)+len(e.Data))
	buf = append(buf, flags)
	buf = binary.AppendUvarint(buf, uint64(len(e.ContentType)))
	buf = append(buf, e.ContentType...)
	return append(buf, e.Data...)
}

func decode(raw []byte) (Entry, error) {
	if len(raw) < 1 {
		return Entry{}, fmt.Errorf("empty entry")
	}
	flags := raw[0]
	n, w := binary.Uvarint(raw[1:])
	if w <= 0 || uint64(len(raw)-1-w) < n {
		return Entry{}, fmt.Errorf("bad content type length")
	}
	rest := raw[1+w:]
	return Entry{
		ContentType: string(rest[:n]),
		Data:        rest[n:],
		Verified:    flags&flagVerified != 0,
	}, nil
}
