package pipeline

import (
	"context"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/metrics"
	"fleettrack/internal/store"
)

// DirectWriter is the §4.D-direct fallback: invoked synchronously by
// the ingress API whenever eventlog.Publish returns ok=false (the
// breaker is open or the publish errored), it writes straight to the
// history store and pushes straight to the broker, skipping the log
// entirely for that one record.
type DirectWriter struct {
	db     *store.Store
	pusher RoomPusher
}

func NewDirectWriter(db *store.Store, pusher RoomPusher) *DirectWriter {
	return &DirectWriter{db: db, pusher: pusher}
}

func (d *DirectWriter) WritePosition(ctx context.Context, pos *domain.Position) error {
	metrics.DirectWritesTotal.Inc()

	if err := d.db.InsertPosition(ctx, pos); err != nil {
		return err
	}
	if err := d.db.UpdateDescriptors(ctx, []string{pos.VehicleID}, domain.VehicleStatusActive, time.Now()); err != nil {
		return err
	}
	d.pusher.PushToRoom("vehicle:"+pos.VehicleID, "location", pos)
	return nil
}
