// Package store is the history store: Postgres/TimescaleDB via pgx,
// grounded on the teacher's internal/store/timescale.go — same pool
// construction and CopyFrom-based bulk insert, generalized from
// vehicle_telemetry/vehicle_alerts onto this repository's domain model.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleettrack/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, uri string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("store: parse DB_URI: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close()                         { s.pool.Close() }
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

var positionColumns = []string{
	"timestamp", "received_at", "vehicle_id", "fleet_id",
	"lat", "lng", "speed_kmh", "heading_deg", "accuracy_m", "altitude_m",
	"is_moving", "raw_payload",
}

// BatchInsertPositions is the persistence worker's bulk write: a single
// CopyFrom per batch, capped upstream at 500 records. Unordered,
// duplicate-key non-fatal — the hypertable has no unique constraint on
// (vehicle_id, timestamp), so at-least-once redelivery just adds a
// duplicate row rather than failing the copy.
func (s *Store) BatchInsertPositions(ctx context.Context, positions []*domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(positions))
	for i, p := range positions {
		rows[i] = []interface{}{
			p.Timestamp, p.ReceivedAt, p.VehicleID, p.FleetID,
			p.Lat, p.Lng, p.SpeedKmh, p.HeadingDeg, p.AccuracyM, p.AltitudeM,
			p.IsMoving, string(p.RawPayload),
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"vehicle_positions"}, positionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("store: copy batch of %d positions: %w", len(positions), err)
	}
	return nil
}

// InsertPosition is the single-record path used by the direct-write
// fallback (§4.D-direct) when the event log publish fails.
func (s *Store) InsertPosition(ctx context.Context, p *domain.Position) error {
	const query = `
		INSERT INTO vehicle_positions
			(timestamp, received_at, vehicle_id, fleet_id, lat, lng, speed_kmh,
			 heading_deg, accuracy_m, altitude_m, is_moving, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := s.pool.Exec(ctx, query,
		p.Timestamp, p.ReceivedAt, p.VehicleID, p.FleetID, p.Lat, p.Lng, p.SpeedKmh,
		p.HeadingDeg, p.AccuracyM, p.AltitudeM, p.IsMoving, string(p.RawPayload))
	return err
}

// UpdateDescriptors bulk-updates the status/last_seen projection for
// every vehicle_id touched by a batch, via one statement that unnests
// the id array.
func (s *Store) UpdateDescriptors(ctx context.Context, vehicleIDs []string, status string, lastSeen time.Time) error {
	if len(vehicleIDs) == 0 {
		return nil
	}
	const query = `
		UPDATE vehicles AS v
		SET status = $1, last_seen = $2
		FROM (SELECT unnest($3::text[]) AS vehicle_id) AS touched
		WHERE v.vehicle_id = touched.vehicle_id
	`
	_, err := s.pool.Exec(ctx, query, status, lastSeen, vehicleIDs)
	return err
}

func (s *Store) LatestPosition(ctx context.Context, vehicleID string) (*domain.Position, error) {
	const query = `
		SELECT timestamp, received_at, vehicle_id, fleet_id, lat, lng, speed_kmh,
		       heading_deg, accuracy_m, altitude_m, is_moving, raw_payload
		FROM vehicle_positions
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, vehicleID)
	return scanPosition(row)
}

// History returns up to limit rows for vehicleID, reverse-chronological.
func (s *Store) History(ctx context.Context, vehicleID string, limit int) ([]*domain.Position, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	const query = `
		SELECT timestamp, received_at, vehicle_id, fleet_id, lat, lng, speed_kmh,
		       heading_deg, accuracy_m, altitude_m, is_moving, raw_payload
		FROM vehicle_positions
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// RecentPublicPositions returns, for every vehicle with a descriptor row,
// its newest position at or after since, plus a vehicle_id → is_public
// map. The public-only filter, the radius filter, the ordering by
// distance and the cap of 100 are applied by the caller (getNearby) in
// Go with internal/geo, since planar distance is not a SQL expression
// the schema indexes on.
func (s *Store) RecentPublicPositions(ctx context.Context, since time.Time) ([]*domain.Position, map[string]bool, error) {
	const query = `
		SELECT DISTINCT ON (p.vehicle_id)
		       p.timestamp, p.received_at, p.vehicle_id, p.fleet_id, p.lat, p.lng,
		       p.speed_kmh, p.heading_deg, p.accuracy_m, p.altitude_m, p.is_moving, p.raw_payload,
		       v.is_public
		FROM vehicle_positions p
		JOIN vehicles v ON v.vehicle_id = p.vehicle_id
		WHERE p.timestamp >= $1
		ORDER BY p.vehicle_id, p.timestamp DESC
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, nil, fmt.Errorf("store: recent positions query: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	public := make(map[string]bool)
	for rows.Next() {
		var p domain.Position
		var raw string
		var isPublic bool
		if err := rows.Scan(&p.Timestamp, &p.ReceivedAt, &p.VehicleID, &p.FleetID, &p.Lat, &p.Lng,
			&p.SpeedKmh, &p.HeadingDeg, &p.AccuracyM, &p.AltitudeM, &p.IsMoving, &raw, &isPublic); err != nil {
			return nil, nil, fmt.Errorf("store: scan recent position: %w", err)
		}
		p.RawPayload = []byte(raw)
		positions = append(positions, &p)
		public[p.VehicleID] = isPublic
	}
	return positions, public, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var raw string
	if err := row.Scan(&p.Timestamp, &p.ReceivedAt, &p.VehicleID, &p.FleetID, &p.Lat, &p.Lng,
		&p.SpeedKmh, &p.HeadingDeg, &p.AccuracyM, &p.AltitudeM, &p.IsMoving, &raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan position: %w", err)
	}
	p.RawPayload = []byte(raw)
	return &p, nil
}

// InsertHazardReport and InsertSOSEvent back the ambient /api/reports
// and /api/sos transport paths (§4.G): the core only persists and
// broadcasts these payloads, never evaluates their business logic.
func (s *Store) InsertHazardReport(ctx context.Context, h *domain.HazardReport) error {
	const query = `
		INSERT INTO hazard_reports (id, kind, severity, lat, lng, radius_m, created_at, expires_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.pool.Exec(ctx, query, h.ID, string(h.Kind), h.Severity, h.Lat, h.Lng, h.RadiusM,
		h.CreatedAt, h.ExpiresAt, string(h.Payload))
	return err
}

func (s *Store) InsertSOSEvent(ctx context.Context, e *domain.SOSEvent) error {
	const query = `
		INSERT INTO sos_events (id, user_id, vehicle_id, lat, lng, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := s.pool.Exec(ctx, query, e.ID, e.UserID, e.VehicleID, e.Lat, e.Lng, e.CreatedAt)
	return err
}
