package store

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// Cache is a write-through existence cache backed by Redis, mirroring
// the teacher's registry/storage/cache/redis blob descriptor cache. It
// is purely a performance layer: Store always falls through to the
// filesystem on a cache miss, so correctness never depends on Redis
// being reachable, populated, or even configured.
type Cache struct {
	pool   *redis.Pool
	prefix string
	ttl    time.Duration
}

// NewCache returns a Cache using pool, namespacing keys under prefix
// (typically the repo id) so one Redis instance can back many repos.
func NewCache(pool *redis.Pool, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{pool: pool, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(kind string, id objectid.ID) string {
	return fmt.Sprintf("converge:%s:%s:%s", c.prefix, kind, id.String())
}

// Check reports (present, true) on a cache hit, or (_, false) on a miss
// or any Redis error — callers must fall through to disk in that case.
func (c *Cache) Check(kind string, id objectid.ID) (bool, bool) {
	conn, err := c.pool.Dial()
	if err != nil {
		return false, false
	}
	defer conn.Close()

	exists, err := redis.Bool(conn.Do("EXISTS", c.key(kind, id)))
	if err != nil {
		return false, false
	}
	if !exists {
		return false, false
	}
	return true, true
}

// Mark records that an object is present, best-effort.
func (c *Cache) Mark(kind string, id objectid.ID) {
	conn, err := c.pool.Dial()
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Do("SET", c.key(kind, id), 1, "EX", int(c.ttl.Seconds()))
}
