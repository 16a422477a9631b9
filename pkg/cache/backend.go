package cache

import (
	"time"

	logutil "github.com/duskward/wardencore/pkg/logging"
)

// Backend is the moderation core's Cache Backend: it prefers a shared
// Redis-compatible remote cache so multiple bot processes observe the same
// state, and transparently falls back to a local TTLMap whenever the
// remote is unreachable or returns an error. Unlike the teacher's
// composite cache (which broadcasts to every child), Backend treats Remote
// as primary and Memory as a failure-mode substitute: whenever Remote
// returns no value, whether from a miss or an error, Memory is consulted.
type Backend struct {
	remote *RemoteCache // nil when no VALKEY_URL was configured
	memory *TTLMap
	logger *logutil.Logger
}

// NewBackend builds a Backend. remote may be nil, in which case the
// backend operates purely out of the in-memory TTL map.
func NewBackend(remote *RemoteCache, defaultTTL time.Duration) *Backend {
	return &Backend{
		remote: remote,
		memory: NewTTLMap("moderation-cache", defaultTTL, time.Minute, 0),
		logger: logutil.WithField("component", "cache_backend"),
	}
}

func (b *Backend) Close() {
	b.memory.Close()
	if b.remote != nil {
		_ = b.remote.Close()
	}
}

// Get tries the remote cache first, falling back to memory whenever the
// remote is absent or fails to answer. A remote hit is mirrored into
// memory so a subsequent remote outage still serves a recent value.
func (b *Backend) Get(key string) (any, bool) {
	if b.remote != nil {
		if v, ok := b.remote.Get(key); ok {
			b.memory.Set(key, v, 0)
			return v, true
		}
	}
	return b.memory.Get(key)
}

// Set writes through to both tiers. A remote write failure is logged and
// swallowed: memory still holds the value, so callers keep working during
// a remote outage instead of failing the whole operation.
func (b *Backend) Set(key string, value any, ttl time.Duration) error {
	if err := b.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if b.remote != nil {
		if err := b.remote.Set(key, value, ttl); err != nil {
			b.logger.WithField("key", key).WithError(err).Warn("remote cache set failed, serving from memory only")
		}
	}
	return nil
}

func (b *Backend) Delete(key string) error {
	_ = b.memory.Delete(key)
	if b.remote != nil {
		if err := b.remote.Delete(key); err != nil {
			b.logger.WithField("key", key).WithError(err).Warn("remote cache delete failed")
		}
	}
	return nil
}

func (b *Backend) Has(key string) bool {
	if b.remote != nil && b.remote.Has(key) {
		return true
	}
	return b.memory.Has(key)
}

func (b *Backend) Stats() CacheStats {
	stats := b.memory.Stats()
	if b.remote != nil {
		stats.CustomMetrics["remote_enabled"] = true
	} else {
		stats.CustomMetrics["remote_enabled"] = false
	}
	return stats
}

func (b *Backend) Cleanup() error { return b.memory.Cleanup() }
func (b *Backend) Clear() error   { return b.memory.Clear() }
func (b *Backend) Size() int      { return b.memory.Size() }
func (b *Backend) Keys() []string { return b.memory.Keys() }

var _ CacheManager = (*Backend)(nil)
