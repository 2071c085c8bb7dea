package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

func TestLocalCache_PutGet(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	pos := &domain.Position{VehicleID: "veh-1", Lat: 1, Lng: 2, Timestamp: time.Now()}
	require.NoError(t, c.Put(context.Background(), pos))

	got, ok, err := c.Get(context.Background(), "veh-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pos.Lat, got.Lat)
}

func TestLocalCache_Get_Miss(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCache_Put_RejectsOlderTimestamp(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	now := time.Now()
	newer := &domain.Position{VehicleID: "veh-1", Lat: 10, Lng: 10, Timestamp: now}
	older := &domain.Position{VehicleID: "veh-1", Lat: 99, Lng: 99, Timestamp: now.Add(-time.Minute)}

	require.NoError(t, c.Put(context.Background(), newer))
	require.NoError(t, c.Put(context.Background(), older))

	got, ok, err := c.Get(context.Background(), "veh-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Lat, "an older-timestamped write must not overwrite a newer cached entry")
}

func TestLocalCache_PutBatch(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	positions := []*domain.Position{
		{VehicleID: "veh-1", Lat: 1, Lng: 1, Timestamp: time.Now()},
		{VehicleID: "veh-2", Lat: 2, Lng: 2, Timestamp: time.Now()},
	}
	require.NoError(t, c.PutBatch(context.Background(), positions))

	for _, id := range []string{"veh-1", "veh-2"} {
		_, ok, err := c.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestLocalCache_IncrThrottle_CountsWithinWindow(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	count1, err := c.IncrThrottle(context.Background(), "veh-1", time.Second)
	require.NoError(t, err)
	count2, err := c.IncrThrottle(context.Background(), "veh-1", time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(1), count1)
	assert.Equal(t, int64(2), count2)
}

func TestLocalCache_IncrThrottle_ResetsAfterWindow(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	_, err := c.IncrThrottle(context.Background(), "veh-1", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	count, err := c.IncrThrottle(context.Background(), "veh-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter must reset once its window has elapsed")
}

func TestLocalCache_HasMoved_NoCachedEntryReportsMoved(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	moved, err := c.HasMoved(context.Background(), "unknown", 1, 1, 10)
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestLocalCache_HasMoved_DistanceThreshold(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Put(context.Background(), &domain.Position{
		VehicleID: "veh-1", Lat: 0, Lng: 0, Timestamp: time.Now(),
	}))

	closeBy, err := c.HasMoved(context.Background(), "veh-1", 0, 0.00001, 1000)
	require.NoError(t, err)
	assert.False(t, closeBy)

	farAway, err := c.HasMoved(context.Background(), "veh-1", 1, 1, 1000)
	require.NoError(t, err)
	assert.True(t, farAway)
}

func TestLocalCache_Ping(t *testing.T) {
	c := NewLocalCache(time.Minute)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
}
