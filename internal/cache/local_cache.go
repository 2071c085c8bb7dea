package cache

import (
	"context"
	"sync"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
)

// LocalCache is the in-process fallback Cacher, selected at boot when
// REDIS_URL is unset or the Redis client fails to ping. Grounded on the
// teacher-pack's cartographus in-memory cache (internal/cache/cache.go):
// a mutex-protected map with a background sweep goroutine, generalized
// here to also hold the throttle counters the gate needs.
type LocalCache struct {
	mu  sync.RWMutex
	ttl time.Duration

	positions map[string]localEntry
	throttle  map[string]throttleEntry

	stop chan struct{}
}

type localEntry struct {
	pos       *domain.Position
	expiresAt time.Time
}

type throttleEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLocalCache starts the sweeper goroutine and returns a ready Cacher.
func NewLocalCache(ttl time.Duration) *LocalCache {
	c := &LocalCache{
		ttl:       ttl,
		positions: make(map[string]localEntry),
		throttle:  make(map[string]throttleEntry),
		stop:      make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *LocalCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *LocalCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.positions {
		if now.After(e.expiresAt) {
			delete(c.positions, k)
		}
	}
	for k, e := range c.throttle {
		if now.After(e.expiresAt) {
			delete(c.throttle, k)
		}
	}
}

func (c *LocalCache) Put(ctx context.Context, pos *domain.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.positions[pos.VehicleID]; ok && !pos.Timestamp.After(existing.pos.Timestamp) {
		return nil
	}
	c.positions[pos.VehicleID] = localEntry{pos: pos, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

func (c *LocalCache) Get(ctx context.Context, vehicleID string) (*domain.Position, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.positions[vehicleID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.pos, true, nil
}

func (c *LocalCache) PutBatch(ctx context.Context, positions []*domain.Position) error {
	for _, p := range positions {
		if err := c.Put(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *LocalCache) IncrThrottle(ctx context.Context, vehicleID string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, ok := c.throttle[vehicleID]
	if !ok || now.After(e.expiresAt) {
		e = throttleEntry{count: 0, expiresAt: now.Add(window)}
	}
	e.count++
	c.throttle[vehicleID] = e
	return e.count, nil
}

func (c *LocalCache) HasMoved(ctx context.Context, vehicleID string, lat, lng, minMeters float64) (bool, error) {
	c.mu.RLock()
	e, ok := c.positions[vehicleID]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return true, nil
	}
	return geo.PlanarDistanceM(e.pos.Lat, e.pos.Lng, lat, lng) >= minMeters, nil
}

func (c *LocalCache) Ping(ctx context.Context) error { return nil }

func (c *LocalCache) Close() error {
	close(c.stop)
	return nil
}
