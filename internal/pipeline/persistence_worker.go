// Package pipeline holds the event-log consumer groups (§4.D, §4.E) and
// the direct-write fallback (§4.D-direct). Grounded on the teacher's
// channel-fed DBWriter/StateWriter batching loops, adapted from an
// in-process channel fan-out onto JetStream consumer groups: the event
// log itself now does the fan-out spec.md's Dispatcher used to do.
package pipeline

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"fleettrack/internal/domain"
	"fleettrack/internal/eventlog"
	"fleettrack/internal/logging"
	"fleettrack/internal/metrics"
	"fleettrack/internal/store"
)

// PersistenceWorker is the location-db-writer consumer group: it buffers
// parsed positions and flushes them as one CopyFrom per batch, capped at
// 500 records per spec.md's B_max, grounded on the teacher's DBWriter.
type PersistenceWorker struct {
	bus           eventlog.Bus
	db            *store.Store
	batchSize     int
	flushInterval time.Duration
	ch            chan *domain.Position
}

const maxBatchRecords = 500

func NewPersistenceWorker(bus eventlog.Bus, db *store.Store, batchSize int, flushInterval time.Duration) *PersistenceWorker {
	if batchSize <= 0 || batchSize > maxBatchRecords {
		batchSize = maxBatchRecords
	}
	return &PersistenceWorker{
		bus:           bus,
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		ch:            make(chan *domain.Position, batchSize*2),
	}
}

// Run starts the flush loop and blocks subscribing the consumer group;
// returns when ctx is cancelled or Subscribe fails to bind.
func (w *PersistenceWorker) Run(ctx context.Context) error {
	go w.flushLoop(ctx)
	return w.bus.Subscribe(ctx, "vehicle-locations", "location-db-writer", w.handle)
}

// handle parses the record and, on success, hands it to the batching
// goroutine and acks immediately — ack advances the offset regardless
// of whether the eventual DB write succeeds, per spec.md §4.D.
// Unparsable records are skipped (acked, not retried).
func (w *PersistenceWorker) handle(ctx context.Context, subject string, data []byte) error {
	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("persistence: skipping unparsable record")
		return nil
	}
	select {
	case w.ch <- &pos:
	case <-ctx.Done():
	}
	return nil
}

func (w *PersistenceWorker) flushLoop(ctx context.Context) {
	batch := make([]*domain.Position, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case pos := <-w.ch:
			batch = append(batch, pos)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (w *PersistenceWorker) flush(ctx context.Context, batch []*domain.Position) {
	snapshot := make([]*domain.Position, len(batch))
	copy(snapshot, batch)

	metrics.PersistenceBatchSize.Observe(float64(len(snapshot)))

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// No retry here: spec.md §5/§7 leave persistence writes unretried past
	// the consumer-group redelivery mechanism — the handler already acked
	// this batch's records, so a failed write is simply lost, not replayed.
	if err := w.db.BatchInsertPositions(writeCtx, snapshot); err != nil {
		logging.Error().Err(err).Int("batch", len(snapshot)).Msg("persistence worker: batch write failed, records lost")
		return
	}

	ids := distinctVehicleIDs(snapshot)
	if err := w.db.UpdateDescriptors(writeCtx, ids, domain.VehicleStatusActive, time.Now()); err != nil {
		logging.Warn().Err(err).Msg("persistence worker: descriptor update failed")
	}
}

func distinctVehicleIDs(positions []*domain.Position) []string {
	seen := make(map[string]struct{}, len(positions))
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.VehicleID]; ok {
			continue
		}
		seen[p.VehicleID] = struct{}{}
		out = append(out, p.VehicleID)
	}
	return out
}
