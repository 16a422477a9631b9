package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mediocregopher/radix/v3"

	logutil "github.com/duskward/wardencore/pkg/logging"
)

// keyPrefix namespaces every key this process writes to the shared Redis-
// compatible store so multiple services can share one Valkey instance.
const keyPrefix = "tux:"

// RemoteCache is a CacheManager backed by a Redis-compatible server reached
// through radix's connection pool. Values are JSON-encoded; TTLs map onto
// SETEX. Keys() and Size() are not supported (Size returns -1, Keys returns
// nil) since SCAN over a shared namespace is relatively costly and never
// required by the moderation pipeline's hot paths.
type RemoteCache struct {
	pool *radix.Pool
	name string
}

// NewRemoteCache dials a connection pool against addr (host:port). poolSize
// mirrors the size radix recommends for a small bot workload.
func NewRemoteCache(name, addr string, poolSize int) (*RemoteCache, error) {
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := radix.NewPool("tcp", addr, poolSize)
	if err != nil {
		return nil, fmt.Errorf("cache: dial remote %q: %w", addr, err)
	}
	return &RemoteCache{pool: pool, name: name}, nil
}

func (r *RemoteCache) namespaced(key string) string {
	if strings.HasPrefix(key, keyPrefix) {
		return key
	}
	return keyPrefix + key
}

func (r *RemoteCache) Close() error {
	return r.pool.Close()
}

func (r *RemoteCache) Get(key string) (any, bool) {
	var raw string
	if err := r.pool.Do(radix.Cmd(&raw, "GET", r.namespaced(key))); err != nil {
		logutil.WithField("component", "remote_cache").WithError(err).Warn(fmt.Sprintf("remote get %q failed", key))
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logutil.WithField("component", "remote_cache").WithError(err).Warn(fmt.Sprintf("remote value for %q is not valid JSON", key))
		return nil, false
	}
	return v, true
}

func (r *RemoteCache) Set(key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return NewCacheError("set", key, err)
	}
	nkey := r.namespaced(key)
	if ttl <= 0 {
		if err := r.pool.Do(radix.Cmd(nil, "SET", nkey, string(b))); err != nil {
			return NewCacheError("set", key, err)
		}
		return nil
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if err := r.pool.Do(radix.Cmd(nil, "SETEX", nkey, fmt.Sprintf("%d", seconds), string(b))); err != nil {
		return NewCacheError("set", key, err)
	}
	return nil
}

func (r *RemoteCache) Delete(key string) error {
	if err := r.pool.Do(radix.Cmd(nil, "DEL", r.namespaced(key))); err != nil {
		return NewCacheError("delete", key, err)
	}
	return nil
}

func (r *RemoteCache) Has(key string) bool {
	var n int
	if err := r.pool.Do(radix.Cmd(&n, "EXISTS", r.namespaced(key))); err != nil {
		return false
	}
	return n > 0
}

func (r *RemoteCache) Stats() CacheStats {
	return CacheStats{
		TTLEnabled: true,
		CustomMetrics: map[string]any{
			"name":           r.name,
			"implementation": "RemoteCache",
		},
	}
}

// Cleanup is a no-op: Redis/Valkey expires keys on its own.
func (r *RemoteCache) Cleanup() error { return nil }

// Clear is intentionally unsupported: FLUSHDB would nuke keys belonging to
// other namespaces sharing the same server.
func (r *RemoteCache) Clear() error {
	return NewCacheError("clear", "", fmt.Errorf("remote cache does not support bulk clear"))
}

// Size is unsupported without a SCAN sweep; callers needing an entry count
// should track it themselves.
func (r *RemoteCache) Size() int { return -1 }

// Keys is unsupported for the same reason as Size.
func (r *RemoteCache) Keys() []string { return nil }

// SetTTL re-pins an existing key's TTL with EXPIRE (rounded down to whole
// seconds, minimum one second). It returns an error when the key does not
// exist.
func (r *RemoteCache) SetTTL(key string, ttl time.Duration) error {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	var n int
	if err := r.pool.Do(radix.Cmd(&n, "EXPIRE", r.namespaced(key), fmt.Sprintf("%d", seconds))); err != nil {
		return NewCacheError("set_ttl", key, err)
	}
	if n == 0 {
		return NewCacheError("set_ttl", key, fmt.Errorf("key not found"))
	}
	return nil
}

func (r *RemoteCache) GetTTL(key string) (time.Duration, bool) {
	var seconds int
	if err := r.pool.Do(radix.Cmd(&seconds, "TTL", r.namespaced(key))); err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func (r *RemoteCache) GetExpiration(key string) (time.Time, bool) {
	ttl, ok := r.GetTTL(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Now().Add(ttl), true
}
