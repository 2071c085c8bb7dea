package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFrame_SetsTypeAndPayload(t *testing.T) {
	f := errorFrame("invalid payload", "validation")

	assert.Equal(t, EventError, f.Type)

	payload, ok := f.Payload.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "invalid payload", payload["message"])
	assert.Equal(t, "validation", payload["code"])
}
