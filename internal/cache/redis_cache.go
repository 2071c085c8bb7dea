package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
)

// RedisCache is the production Cacher. Grounded on the teacher's
// internal/store/redis.go (PipelineStateUpdate's HSET+EXPIRE pipeline,
// CheckAlertDedup/SetAlertDedup's key-per-concern shape), generalized
// from per-field HSET to a single JSON blob since the gate only ever
// needs the whole Position back, and goccy/go-json for the encode since
// that's the JSON library the pack already pulls in for this concern.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache dials Redis and pings it; callers fall back to
// NewLocalCache if this returns an error.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func positionKey(vehicleID string) string { return "loc:" + vehicleID }
func throttleKey(vehicleID string) string { return "throttle:" + vehicleID }

func (r *RedisCache) Put(ctx context.Context, pos *domain.Position) error {
	existing, ok, err := r.Get(ctx, pos.VehicleID)
	if err != nil {
		return err
	}
	if ok && !pos.Timestamp.After(existing.Timestamp) {
		return nil
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("cache: marshal position: %w", err)
	}
	return r.client.Set(ctx, positionKey(pos.VehicleID), data, r.ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, vehicleID string) (*domain.Position, bool, error) {
	val, err := r.client.Get(ctx, positionKey(vehicleID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", vehicleID, err)
	}
	var pos domain.Position
	if err := json.Unmarshal(val, &pos); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal position %s: %w", vehicleID, err)
	}
	return &pos, true, nil
}

// PutBatch reads the batch's current entries in one MGET pipeline, then
// writes only the entries that are new or newer in a second pipeline.
// Two round trips regardless of batch size, preserving invariant 1
// without requiring a read-modify-write per record.
func (r *RedisCache) PutBatch(ctx context.Context, positions []*domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	keys := make([]string, len(positions))
	for i, p := range positions {
		keys[i] = positionKey(p.VehicleID)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("cache: batch mget: %w", err)
	}

	pipe := r.client.Pipeline()
	for i, p := range positions {
		if raw, ok := vals[i].(string); ok {
			var existing domain.Position
			if err := json.Unmarshal([]byte(raw), &existing); err == nil && !p.Timestamp.After(existing.Timestamp) {
				continue
			}
		}
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		pipe.Set(ctx, positionKey(p.VehicleID), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: batch set: %w", err)
	}
	return nil
}

// IncrThrottle sets the window TTL only on the first increment. The
// INCR-then-EXPIRE sequence below is not atomic against a concurrent
// sweep, same tradeoff the teacher accepts in SetAlertDedup's plain
// SET+TTL; a lost race here only ever widens one vehicle's window by
// a few milliseconds.
func (r *RedisCache) IncrThrottle(ctx context.Context, vehicleID string, window time.Duration) (int64, error) {
	key := throttleKey(vehicleID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr throttle: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}
	return count, nil
}

func (r *RedisCache) HasMoved(ctx context.Context, vehicleID string, lat, lng, minMeters float64) (bool, error) {
	pos, ok, err := r.Get(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return geo.PlanarDistanceM(pos.Lat, pos.Lng, lat, lng) >= minMeters, nil
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.client.Close() }
