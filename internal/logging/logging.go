// Package logging provides a single zerolog-based global logger,
// configured once at boot. Generalized from the teacher-pack's
// cartographus/internal/logging package down to FleetTrack's scope: one
// global logger, level/format from config, no audit sink.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	Init(Config{Level: "info", Format: "json"})
}

// Config holds the two knobs the environment actually exposes.
type Config struct {
	Level  string // trace|debug|info|warn|error
	Format string // json|console
}

// Init configures the global logger. Called once at boot with values
// parsed from the environment; safe to call again in tests.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out zerolog.Logger
	if cfg.Format == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stdout)
	}
	log = out.With().Timestamp().Logger()
}

func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &log
}

func Debug() *zerolog.Event { return L().Debug() }
func Info() *zerolog.Event  { return L().Info() }
func Warn() *zerolog.Event  { return L().Warn() }
func Error() *zerolog.Event { return L().Error() }
