package pipeline

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"fleettrack/internal/domain"
	"fleettrack/internal/eventlog"
	"fleettrack/internal/logging"
)

// Server->client event names this worker emits. Defined here rather than
// imported from the broker package (pipeline must not depend on broker,
// per the RoomPusher seam below) but must match spec.md §6 literally.
const (
	eventVehicleMoved  = "vehicle-moved"
	eventStatusChanged = "status-changed"
)

// RoomPusher is the narrow capability the fan-out worker needs from the
// broker. Consuming only this interface, not the broker's full type,
// breaks the broker<->fan-out-worker cycle spec.md §9 calls out, with
// no mediator package required.
type RoomPusher interface {
	PushToRoom(room, event string, payload any)
}

// FanoutWorker is the websocket-fanout consumer group: per batch window
// it keeps only the latest position per vehicle (offset order, later
// wins), pushes each to its vehicle room, and pushes one coalesced
// summary to nearby-all rather than one message per record.
type FanoutWorker struct {
	bus           eventlog.Bus
	pusher        RoomPusher
	flushInterval time.Duration
	ch            chan *domain.Position
}

func NewFanoutWorker(bus eventlog.Bus, pusher RoomPusher, flushInterval time.Duration) *FanoutWorker {
	return &FanoutWorker{
		bus:           bus,
		pusher:        pusher,
		flushInterval: flushInterval,
		ch:            make(chan *domain.Position, 1000),
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	go w.coalesceLoop(ctx)
	return w.bus.Subscribe(ctx, "vehicle-locations", "websocket-fanout", w.handle)
}

func (w *FanoutWorker) handle(ctx context.Context, subject string, data []byte) error {
	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("fanout: skipping unparsable record")
		return nil
	}
	select {
	case w.ch <- &pos:
	case <-ctx.Done():
	}
	return nil
}

func (w *FanoutWorker) coalesceLoop(ctx context.Context) {
	latest := make(map[string]*domain.Position)
	prev := make(map[string]*domain.Position)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(latest) == 0 {
			return
		}
		for vehicleID, pos := range latest {
			w.pusher.PushToRoom("vehicle:"+vehicleID, "location", pos)
			if pos.FleetID != "" {
				w.pusher.PushToRoom("fleet:"+pos.FleetID, eventVehicleMoved, pos)
			}
			w.emitStatusChange(vehicleID, prev[vehicleID], pos)
			prev[vehicleID] = pos
		}
		w.pusher.PushToRoom("nearby-all", "batch-moved", batchMovedSummary(latest))
		latest = make(map[string]*domain.Position)
	}

	for {
		select {
		case pos := <-w.ch:
			latest[pos.VehicleID] = pos
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// emitStatusChange runs every rule in domain.DefaultStatusRules against
// the vehicle's previous and newly-coalesced position, pushing
// status-changed for the first rule that fires. prev is nil on a
// vehicle's first flush window, matching every rule's own nil handling.
func (w *FanoutWorker) emitStatusChange(vehicleID string, prev, next *domain.Position) {
	for _, rule := range domain.DefaultStatusRules {
		changed, status := rule.Evaluator(prev, next)
		if !changed {
			continue
		}
		w.pusher.PushToRoom("vehicle:"+vehicleID, eventStatusChanged, map[string]any{
			"vehicle_id": vehicleID,
			"status":     status,
		})
		return
	}
}

func batchMovedSummary(latest map[string]*domain.Position) []map[string]any {
	out := make([]map[string]any, 0, len(latest))
	for vehicleID, pos := range latest {
		out = append(out, map[string]any{
			"vehicle_id": vehicleID,
			"lat":        pos.Lat,
			"lng":        pos.Lng,
			"speed":      pos.SpeedKmh,
			"heading":    pos.HeadingDeg,
		})
	}
	return out
}

// AlertProcessor is the alert-processor consumer group on route-alerts:
// unlike the fan-out worker it pushes every record individually, no
// coalescing, since route alerts are already low-frequency.
type AlertProcessor struct {
	bus    eventlog.Bus
	pusher RoomPusher
}

func NewAlertProcessor(bus eventlog.Bus, pusher RoomPusher) *AlertProcessor {
	return &AlertProcessor{bus: bus, pusher: pusher}
}

func (a *AlertProcessor) Run(ctx context.Context) error {
	return a.bus.Subscribe(ctx, "route-alerts", "alert-processor", a.handle)
}

func (a *AlertProcessor) handle(ctx context.Context, subject string, data []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("alert-processor: skipping unparsable record")
		return nil
	}
	a.pusher.PushToRoom("nearby-all", "route-alert", payload)
	return nil
}
