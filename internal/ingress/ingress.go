// Package ingress is the shared gate→cache→log sequence spec.md §4.G
// describes for position pushes. Both the HTTP ingress handlers and the
// WebSocket broker's push:location command re-enter this same sequence,
// so it lives in its own package rather than in either caller.
package ingress

import (
	"context"

	"github.com/goccy/go-json"

	"fleettrack/internal/cache"
	"fleettrack/internal/domain"
	"fleettrack/internal/eventlog"
	"fleettrack/internal/gate"
	"fleettrack/internal/logging"
	"fleettrack/internal/metrics"
	"fleettrack/internal/pipeline"
)

// Service wires the gate, the hot cache, the event log, and the
// direct-write fallback into the one admission-to-durability sequence.
type Service struct {
	Gate   *gate.Gate
	Cache  cache.Cacher
	Bus    eventlog.Bus
	Direct *pipeline.DirectWriter
}

func New(g *gate.Gate, c cache.Cacher, bus eventlog.Bus, direct *pipeline.DirectWriter) *Service {
	return &Service{Gate: g, Cache: c, Bus: bus, Direct: direct}
}

// Push runs the gate, then writes to the cache unconditionally (even a
// throttled/no-motion ping keeps the hot cache fresh), then publishes to
// the event log; on publish failure it falls back to a direct write.
// The returned gate.Result is always populated, even when the verdict
// is Throttled — the caller still got an admission decision.
func (s *Service) Push(ctx context.Context, pos *domain.Position) (gate.Result, error) {
	result := s.Gate.Check(ctx, pos)
	metrics.GateVerdictsTotal.WithLabelValues(string(result.Verdict)).Inc()

	if err := s.Cache.Put(ctx, pos); err != nil {
		logging.Warn().Err(err).Str("vehicle_id", pos.VehicleID).Msg("ingress: cache put failed, continuing")
	}

	if result.Verdict == gate.Throttled {
		return result, nil
	}

	payload, err := json.Marshal(pos)
	if err != nil {
		return result, err
	}

	ok, pubErr := s.Bus.Publish(ctx, "vehicle-locations", pos.VehicleID, payload)
	if !ok {
		metrics.EventLogPublishFailuresTotal.Inc()
		if pubErr != nil {
			logging.Warn().Err(pubErr).Str("vehicle_id", pos.VehicleID).Msg("ingress: publish failed, falling back to direct write")
		}
		if err := s.Direct.WritePosition(ctx, pos); err != nil {
			return result, err
		}
	}

	metrics.IngressRequestsTotal.WithLabelValues(string(result.Verdict)).Inc()
	return result, nil
}

// PushBatch applies the same gate → cache → log sequence to a batch:
// every record is gated against the cache state from before the batch,
// the whole batch is written in one cache PutBatch, and each
// non-throttled record is then published with its own Publish call, so
// a publish failure affects only that record. Rejected/invalid records
// are the caller's concern (validated before this is called). Returns
// indices that fell back to a direct write.
func (s *Service) PushBatch(ctx context.Context, positions []*domain.Position) (directFallback []int, err error) {
	results := make([]gate.Result, len(positions))
	for i, pos := range positions {
		results[i] = s.Gate.Check(ctx, pos)
		metrics.GateVerdictsTotal.WithLabelValues(string(results[i].Verdict)).Inc()
	}

	if err := s.Cache.PutBatch(ctx, positions); err != nil {
		logging.Warn().Err(err).Msg("ingress: batch cache put failed, continuing")
	}

	for i, pos := range positions {
		if results[i].Verdict == gate.Throttled {
			continue
		}

		payload, merr := json.Marshal(pos)
		if merr != nil {
			continue
		}
		ok, _ := s.Bus.Publish(ctx, "vehicle-locations", pos.VehicleID, payload)
		if !ok {
			metrics.EventLogPublishFailuresTotal.Inc()
			if werr := s.Direct.WritePosition(ctx, pos); werr == nil {
				directFallback = append(directFallback, i)
			}
		}
	}
	return directFallback, nil
}
