package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/auth"
	"fleettrack/internal/cache"
	"fleettrack/internal/gate"
	"fleettrack/internal/ingress"
)

type fakeBus struct{ publishOK bool }

func (b *fakeBus) Publish(ctx context.Context, stream, key string, payload []byte) (bool, error) {
	return b.publishOK, nil
}

func (b *fakeBus) Subscribe(ctx context.Context, stream, group string, handler func(ctx context.Context, subject string, data []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBus) Close() error { return nil }

func newAuthenticatedClient(t *testing.T) (*Client, cache.Cacher) {
	t.Helper()
	c := cache.NewLocalCache(time.Minute)
	g := gate.New(c)
	svc := ingress.New(g, c, &fakeBus{publishOK: true}, nil)

	client := newTestClient()
	client.deps = &Deps{Ingest: svc}
	client.identity = &auth.Identity{VehicleID: "veh-1"}
	return client, c
}

func TestValidatePushLocation_AcceptsInRangeValues(t *testing.T) {
	err := validatePushLocation(Frame{Lat: 12.9, Lng: 77.6, SpeedKmh: 30, HeadingDeg: 359})
	assert.NoError(t, err)
}

func TestValidatePushLocation_RejectsOutOfRangeFields(t *testing.T) {
	cases := []Frame{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
		{Lat: 0, Lng: 0, SpeedKmh: -1},
		{Lat: 0, Lng: 0, HeadingDeg: 360},
		{Lat: 0, Lng: 0, HeadingDeg: -1},
	}
	for _, f := range cases {
		assert.Error(t, validatePushLocation(f))
	}
}

func TestClient_HandlePushLocation_RejectsUnauthenticated(t *testing.T) {
	client := newTestClient()
	client.handlePushLocation(context.Background(), Frame{Lat: 1, Lng: 1})

	frame := <-client.send
	assert.Equal(t, EventError, frame.Type)
}

func TestClient_HandlePushLocation_RejectsOutOfRangeBeforeReachingIngest(t *testing.T) {
	client, _ := newAuthenticatedClient(t)

	client.handlePushLocation(context.Background(), Frame{Lat: 999, Lng: 1})

	frame := <-client.send
	assert.Equal(t, EventError, frame.Type)
}

func TestClient_HandlePushLocation_AcceptsAndCarriesSpeedAndHeading(t *testing.T) {
	client, c := newAuthenticatedClient(t)

	client.handlePushLocation(context.Background(), Frame{Lat: 12.9, Lng: 77.6, SpeedKmh: 42, HeadingDeg: 180})

	frame := <-client.send
	assert.Equal(t, "ack", frame.Type)

	cached, ok, err := c.Get(context.Background(), "veh-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42.0, cached.SpeedKmh)
	assert.Equal(t, 180.0, cached.HeadingDeg)
}

func TestHandleGetNearby_UnavailableWithoutStore(t *testing.T) {
	client := newTestClient()
	client.deps = &Deps{}

	client.handleGetNearby(context.Background(), Frame{})

	frame := <-client.send
	assert.Equal(t, EventError, frame.Type)
}
