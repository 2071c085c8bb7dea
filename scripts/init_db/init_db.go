// Command init_db provisions the TimescaleDB schema FleetTrack's history
// store reads and writes: vehicle_positions (the hypertable), vehicles
// (the descriptor/public-flag projection UpdateDescriptors and
// RecentPublicPositions depend on), hazard_reports, and sos_events.
// Step shape and CLI-progress style are carried forward from the
// teacher's scripts/init_db.go.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := os.Getenv("DB_URI")
	if connStr == "" {
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			dbGetEnv("DB_USER", "fleet_user"),
			dbGetEnv("DB_PASSWORD", "fleet_password"),
			dbGetEnv("DB_HOST", "localhost"),
			dbGetEnv("DB_PORT", "5432"),
			dbGetEnv("DB_NAME", "fleet_monitor"),
		)
	}

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_vehicles_table(ctx, conn)
	step3_positions_table(ctx, conn)
	step4_ambient_tables(ctx, conn)
	step5_indexes(ctx, conn)
	step6_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_vehicles")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for the vehicle_positions hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — vehicles table (descriptor projection)
// ─────────────────────────────────────────────────────────────
func step2_vehicles_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: vehicles table ──────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (
			vehicle_id   TEXT         PRIMARY KEY,
			owner_id     TEXT         NOT NULL,
			fleet_id     TEXT         NOT NULL,

			-- Whether this vehicle's latest position is visible to the
			-- unauthenticated /api/nearby query. Everything else in the
			-- system requires a bearer token.
			is_public    BOOLEAN      NOT NULL DEFAULT false,

			status       TEXT         NOT NULL DEFAULT 'inactive',
			last_seen    TIMESTAMPTZ,

			CONSTRAINT chk_vehicle_status CHECK (status IN ('active', 'inactive'))
		);
	`, "vehicles table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — vehicle_positions hypertable
// ─────────────────────────────────────────────────────────────
func step3_positions_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: vehicle_positions table ─────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_positions (

			-- Vehicle-reported reading time — TimescaleDB partitions on this
			timestamp    TIMESTAMPTZ      NOT NULL,

			-- Server receipt time — vehicle clocks drift, this doesn't
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			vehicle_id   TEXT             NOT NULL,
			fleet_id     TEXT             NOT NULL,

			lat          DOUBLE PRECISION NOT NULL,
			lng          DOUBLE PRECISION NOT NULL,

			speed_kmh    DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading_deg  DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy_m   DOUBLE PRECISION NOT NULL DEFAULT 0,
			altitude_m   DOUBLE PRECISION NOT NULL DEFAULT 0,

			is_moving    BOOLEAN          NOT NULL DEFAULT false,

			-- Original JSON payload — kept for debugging and replay
			raw_payload  JSONB
		);
	`, "vehicle_positions table created")

	// 7-day chunks: queries for recent history only touch the latest chunk
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'vehicle_positions',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "vehicle_positions converted to hypertable")

	// Positions older than 30 days are dropped chunk by chunk
	execOrFatal(ctx, conn, `
		SELECT add_retention_policy(
			'vehicle_positions',
			INTERVAL '30 days',
			if_not_exists => TRUE
		);
	`, "vehicle_positions 30-day retention policy")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — ambient tables (hazard_reports, sos_events)
// ─────────────────────────────────────────────────────────────
func step4_ambient_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: ambient tables ───────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS hazard_reports (
			id          TEXT             PRIMARY KEY,
			kind        TEXT             NOT NULL,
			severity    TEXT             NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lng         DOUBLE PRECISION NOT NULL,
			radius_m    DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ      NOT NULL,
			expires_at  TIMESTAMPTZ      NOT NULL,
			payload     JSONB
		);
	`, "hazard_reports table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS sos_events (
			id          TEXT             PRIMARY KEY,
			user_id     TEXT             NOT NULL,
			vehicle_id  TEXT             NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lng         DOUBLE PRECISION NOT NULL,
			created_at  TIMESTAMPTZ      NOT NULL
		);
	`, "sos_events table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_positions_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_vehicle_time
				  ON vehicle_positions (vehicle_id, timestamp DESC);`,
			why: "query: /api/vehicles/{id}/history",
		},
		{
			name: "idx_positions_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_time
				  ON vehicle_positions (timestamp DESC);`,
			why: "query: RecentPublicPositions (60s window scan for /api/nearby)",
		},
		{
			name: "idx_hazard_reports_expires",
			sql: `CREATE INDEX IF NOT EXISTS idx_hazard_reports_expires
				  ON hazard_reports (expires_at);`,
			why: "retention sweep: expired hazard reports",
		},
		{
			name: "idx_sos_events_user_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_sos_events_user_time
				  ON sos_events (user_id, created_at DESC);`,
			why: "query: SOS credit/audit lookups",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-35s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step6_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Verification ────────────────────────")

	tables := []string{"vehicles", "vehicle_positions", "hazard_reports", "sos_events"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'vehicle_positions'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("vehicle_positions is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)

	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('vehicle_positions', 'hazard_reports', 'sos_events')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
