// Command seed_vehicles seeds the vehicles descriptor table with a
// handful of demo fleets. Auth moved from the teacher's Redis-resident
// API-key lookup to bearer JWTs (internal/auth), so there is no longer
// a key table to seed into Redis; what still needs seeding before the
// rest of the system is useful is the vehicles row UpdateDescriptors
// and RecentPublicPositions both depend on. Step shape and CLI-progress
// style are carried forward from the teacher's scripts/seed_redis.go.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

type seedVehicle struct {
	vehicleID string
	ownerID   string
	fleetID   string
	isPublic  bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	connStr := os.Getenv("DB_URI")
	if connStr == "" {
		log.Fatal("DB_URI is required")
	}

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_vehicles(ctx, conn)
	step2_verify(ctx, conn)

	fmt.Println("\n✅ vehicles table seeded successfully")
	fmt.Println("   Run next: go run ./cmd/server")
}

func step1_vehicles(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Seeding vehicles ─────────────────────")

	vehicles := []seedVehicle{
		{vehicleID: "veh-delhi-jaipur-01", ownerID: "owner-delhi-jaipur", fleetID: "fleet_delhi_jaipur", isPublic: true},
		{vehicleID: "veh-mumbai-pune-01", ownerID: "owner-mumbai-pune", fleetID: "fleet_mumbai_pune", isPublic: true},
		{vehicleID: "veh-bangalore-01", ownerID: "owner-bangalore", fleetID: "fleet_bangalore", isPublic: false},
		{vehicleID: "veh-test-01", ownerID: "owner-test", fleetID: "test_fleet", isPublic: true},
	}

	for _, v := range vehicles {
		_, err := conn.Exec(ctx, `
			INSERT INTO vehicles (vehicle_id, owner_id, fleet_id, is_public, status)
			VALUES ($1, $2, $3, $4, 'inactive')
			ON CONFLICT (vehicle_id) DO UPDATE
				SET owner_id = EXCLUDED.owner_id,
				    fleet_id = EXCLUDED.fleet_id,
				    is_public = EXCLUDED.is_public
		`, v.vehicleID, v.ownerID, v.fleetID, v.isPublic)
		if err != nil {
			log.Fatalf("Failed to seed vehicle %s: %v", v.vehicleID, err)
		}
		fmt.Printf("  ✓ %-22s → fleet=%-20s public=%v\n", v.vehicleID, v.fleetID, v.isPublic)
	}
}

func step2_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	var count int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&count); err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d vehicles found in vehicles table\n", count)

	var fleetID string
	if err := conn.QueryRow(ctx, `SELECT fleet_id FROM vehicles WHERE vehicle_id = 'veh-test-01'`).Scan(&fleetID); err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: veh-test-01 → %s\n", fleetID)
}
