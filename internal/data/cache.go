package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"battery-sizer/internal/model"
)

type cacheEntry struct {
	profiles  model.Profiles
	expiresAt time.Time
}

// ProfileCache keeps loaded profiles in memory for a TTL. Cached profiles
// are shared between callers and must not be modified.
type ProfileCache struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group
	stop  chan struct{}
	once  sync.Once
}

// NewProfileCache starts a cache whose expired entries are swept every
// sweep interval (5 minutes when zero). Close stops the sweeper.
func NewProfileCache(ttl, sweep time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	c := &ProfileCache{
		store: make(map[string]*cacheEntry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.cleanup(sweep)
	return c
}

func (c *ProfileCache) Get(key string) (model.Profiles, bool) {
	if c == nil {
		return model.Profiles{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || c.now().After(e.expiresAt) {
		return model.Profiles{}, false
	}
	return e.profiles, true
}

func (c *ProfileCache) Set(key string, p model.Profiles) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = &cacheEntry{profiles: p, expiresAt: c.now().Add(c.ttl)}
}

func (c *ProfileCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *ProfileCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*cacheEntry)
}

// Load returns the cached profiles for spec or loads them through src.
// Concurrent loads of the same spec share one call. A nil cache always
// loads.
func (c *ProfileCache) Load(ctx context.Context, spec SourceSpec, src Source) (model.Profiles, error) {
	if c == nil {
		return src.Load(ctx)
	}
	key := CacheKey(spec)
	if p, ok := c.Get(key); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, p)
		return p, nil
	})
	if err != nil {
		return model.Profiles{}, err
	}
	return v.(model.Profiles), nil
}

// Close stops the sweeper. It is safe to call more than once.
func (c *ProfileCache) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stop) })
}

func (c *ProfileCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ProfileCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, k)
		}
	}
}

// CacheKey derives a stable key from every field of spec except the API key.
func CacheKey(spec SourceSpec) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%g|%g|%d|%s|%g",
		spec.Type, spec.Path, spec.URL, spec.DemandColumn, spec.PVColumn,
		spec.Latitude, spec.Longitude, spec.Year, spec.Timezone, spec.AnnualYieldKWhPerKWp)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
