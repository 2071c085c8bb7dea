package pipeline

import (
	"context"

	"github.com/goccy/go-json"

	"fleettrack/internal/eventlog"
	"fleettrack/internal/logging"
)

const eventSOSAlert = "sos-alert"

// vehicleEventEnvelope is the {kind, data} wrapper every vehicle-events
// publisher (currently just postSOS) wraps its record in, since the
// stream carries more than one event kind (spec.md §4.C).
type vehicleEventEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// VehicleEventsProcessor is the vehicle-events-processor consumer group:
// it dispatches each record to the room its kind belongs to, pushing
// each individually (no coalescing — these are one-time signals, not a
// high-frequency stream like positions).
type VehicleEventsProcessor struct {
	bus    eventlog.Bus
	pusher RoomPusher
}

func NewVehicleEventsProcessor(bus eventlog.Bus, pusher RoomPusher) *VehicleEventsProcessor {
	return &VehicleEventsProcessor{bus: bus, pusher: pusher}
}

func (p *VehicleEventsProcessor) Run(ctx context.Context) error {
	return p.bus.Subscribe(ctx, "vehicle-events", "vehicle-events-processor", p.handle)
}

func (p *VehicleEventsProcessor) handle(ctx context.Context, subject string, data []byte) error {
	var env vehicleEventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("vehicle-events-processor: skipping unparsable record")
		return nil
	}

	switch env.Kind {
	case "sos":
		p.pusher.PushToRoom("nearby-all", eventSOSAlert, env.Data)
	default:
		logging.Warn().Str("kind", env.Kind).Msg("vehicle-events-processor: unknown event kind, skipping")
	}
	return nil
}
