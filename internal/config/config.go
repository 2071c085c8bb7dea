// Package config loads FleetTrack's configuration from the environment,
// optionally seeded from a local .env file. Shape and loading style are
// carried forward from the teacher's internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the boot sequence needs.
type Config struct {
	Port string

	// History store (Postgres/TimescaleDB). Required.
	DBURI      string
	DBMaxConns int32

	// Hot cache. Empty RedisURL means: boot with the in-process fallback.
	RedisURL string

	// Event log bus. Empty NATSURL means: direct-write fallback only.
	NATSURL string

	JWTSecret string
	ClientURL string

	LogLevel  string
	LogFormat string

	// Gate tuning (§4.B).
	ThrottleMax      int64
	ThrottleWindow   time.Duration
	DeadZoneMinM     float64
	CacheTTL         time.Duration
	HistoryRetention time.Duration

	// Persistence worker tuning, same shape as the teacher's
	// DBBatchSize/DBFlushIntervalMS/DBWriterWorkers.
	DBBatchSize       int
	DBFlushIntervalMS int
	DBWriterWorkers   int

	// Fan-out worker tuning.
	FanoutFlushIntervalMS int

	// Ingress soft deadline, per spec.md §5.
	IngressDeadline time.Duration

	// SOS gate.
	SOSCreditsPerUser int
	SOSPerIPPerDay    int
}

// Load reads configuration from the environment, after optionally
// loading a .env file for local development — identical order to the
// teacher's boot sequence.
func Load() (*Config, error) {
	_ = godotenv.Load() // no .env file is the common case outside local dev

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		DBURI:      os.Getenv("DB_URI"),
		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 15)),

		RedisURL: os.Getenv("REDIS_URL"),
		NATSURL:  os.Getenv("NATS_URL"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		ClientURL: getEnv("CLIENT_URL", "*"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ThrottleMax:      int64(getEnvInt("THROTTLE_MAX", 5)),
		ThrottleWindow:   time.Second,
		DeadZoneMinM:     getEnvFloat("DEAD_ZONE_MIN_M", 10),
		CacheTTL:         time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		HistoryRetention: time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,

		DBBatchSize:       getEnvInt("DB_BATCH_SIZE", 500),
		DBFlushIntervalMS: getEnvInt("DB_FLUSH_INTERVAL_MS", 100),
		DBWriterWorkers:   getEnvInt("DB_WRITER_WORKERS", 4),

		FanoutFlushIntervalMS: getEnvInt("FANOUT_FLUSH_INTERVAL_MS", 50),

		IngressDeadline: time.Duration(getEnvInt("INGRESS_DEADLINE_MS", 2000)) * time.Millisecond,

		SOSCreditsPerUser: getEnvInt("SOS_CREDITS_PER_USER", 3),
		SOSPerIPPerDay:    getEnvInt("SOS_PER_IP_PER_DAY", 10),
	}

	if cfg.DBURI == "" {
		return nil, fmt.Errorf("config: DB_URI is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}
