package db

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/headwalluk/headlog-sub000/internal/cache"
)

// lookupCacheTTL bounds how long a resolved id lives in the optional
// Redis tier. The in-process map and MySQL remain authoritative, so a
// stale or expired Redis entry never produces an incorrect result, only
// an extra round-trip.
const lookupCacheTTL = time.Hour

// HostCache resolves hostnames to their small-integer id, warmed at
// startup and populated on miss with INSERT IGNORE + re-SELECT. A cache
// hit issues no DB query, though it waits on the read lock while another
// goroutine's miss holds the write lock across its INSERT/SELECT. When
// redisCache is enabled, a miss against the in-process map is checked
// there before falling through to MySQL.
type HostCache struct {
	db    *Database
	redis *cache.Cache
	mu    sync.RWMutex
	m     map[string]int
}

// NewHostCache builds an empty cache; call Warm to preload it. redisCache
// may be a disabled Cache (or nil); every Redis call becomes a no-op.
func NewHostCache(database *Database, redisCache *cache.Cache) *HostCache {
	return &HostCache{db: database, redis: redisCache, m: make(map[string]int)}
}

// Warm preloads every known hostname from the database.
func (c *HostCache) Warm(ctx context.Context) error {
	rows, err := c.db.DB().QueryContext(ctx, `SELECT id, hostname FROM hosts`)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		c.m[name] = id
	}
	return rows.Err()
}

// Resolve returns the id for hostname, inserting it under a scoped lock
// if it has never been observed before.
func (c *HostCache) Resolve(ctx context.Context, hostname string) (int, error) {
	c.mu.RLock()
	if id, ok := c.m[hostname]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	redisKey := "lookup:host:" + hostname
	if val, ok := c.redis.GetString(ctx, redisKey); ok {
		if id, err := strconv.Atoi(val); err == nil {
			c.mu.Lock()
			c.m[hostname] = id
			c.mu.Unlock()
			return id, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another goroutine may have won the race while we waited
	// for the write lock.
	if id, ok := c.m[hostname]; ok {
		return id, nil
	}

	if _, err := c.db.DB().ExecContext(ctx, `INSERT IGNORE INTO hosts (hostname) VALUES (?)`, hostname); err != nil {
		return 0, err
	}

	var id int
	if err := c.db.DB().QueryRowContext(ctx, `SELECT id FROM hosts WHERE hostname = ?`, hostname).Scan(&id); err != nil {
		return 0, err
	}

	c.m[hostname] = id
	c.redis.SetString(ctx, redisKey, strconv.Itoa(id), lookupCacheTTL)
	return id, nil
}

// HTTPCodeCache resolves HTTP status code strings to their id. The code
// "N/A" is bound to id=0 by the migration seed data and resolved without
// touching the database.
type HTTPCodeCache struct {
	db    *Database
	redis *cache.Cache
	mu    sync.RWMutex
	m     map[string]int
}

// NewHTTPCodeCache builds an empty cache; call Warm to preload it.
// redisCache may be a disabled Cache (or nil); every Redis call becomes a
// no-op.
func NewHTTPCodeCache(database *Database, redisCache *cache.Cache) *HTTPCodeCache {
	c := &HTTPCodeCache{db: database, redis: redisCache, m: make(map[string]int)}
	c.m["N/A"] = 0
	return c
}

// Warm preloads every known code from the database.
func (c *HTTPCodeCache) Warm(ctx context.Context) error {
	rows, err := c.db.DB().QueryContext(ctx, `SELECT id, code FROM http_codes`)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var id int
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return err
		}
		c.m[code] = id
	}
	return rows.Err()
}

// Resolve returns the id for a status code string, resolving "" or "N/A"
// directly to the 0 sentinel without a lookup. Cardinality of HTTP codes
// is small and bounded, so a single cache-wide mutex suffices (unlike the
// sharded approach that would make sense for the much larger hostname
// space).
func (c *HTTPCodeCache) Resolve(ctx context.Context, code string) (int, error) {
	if code == "" || code == "N/A" {
		return 0, nil
	}

	c.mu.RLock()
	if id, ok := c.m[code]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	redisKey := "lookup:code:" + code
	if val, ok := c.redis.GetString(ctx, redisKey); ok {
		if id, err := strconv.Atoi(val); err == nil {
			c.mu.Lock()
			c.m[code] = id
			c.mu.Unlock()
			return id, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.m[code]; ok {
		return id, nil
	}

	if _, err := c.db.DB().ExecContext(ctx, `INSERT IGNORE INTO http_codes (code, description) VALUES (?, '')`, code); err != nil {
		return 0, err
	}

	var id int
	if err := c.db.DB().QueryRowContext(ctx, `SELECT id FROM http_codes WHERE code = ?`, code).Scan(&id); err != nil {
		return 0, err
	}

	c.m[code] = id
	c.redis.SetString(ctx, redisKey, strconv.Itoa(id), lookupCacheTTL)
	return id, nil
}
