package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInit_ParsesValidLevel(t *testing.T) {
	Init(Config{Level: "warn", Format: "json"})
	defer Init(Config{Level: "info", Format: "json"})

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestInit_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	Init(Config{Level: "not-a-level", Format: "json"})
	defer Init(Config{Level: "info", Format: "json"})

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_ConsoleFormatDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Init(Config{Level: "debug", Format: "console"})
	})
	Init(Config{Level: "info", Format: "json"})
}

func TestL_ReturnsUsableLogger(t *testing.T) {
	Init(Config{Level: "info", Format: "json"})
	assert.NotNil(t, L())
}

func TestConvenienceWrappers_DoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Debug().Str("k", "v").Msg("debug line")
		Info().Str("k", "v").Msg("info line")
		Warn().Str("k", "v").Msg("warn line")
		Error().Str("k", "v").Msg("error line")
	})
}
