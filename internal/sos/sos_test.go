package sos

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/apperr"
)

func TestGate_Allow_WithinCredit(t *testing.T) {
	g := New(3, 10)

	for i := 0; i < 3; i++ {
		err := g.Allow(context.Background(), "user-1", "10.0.0.1")
		assert.NoError(t, err)
	}
}

func TestGate_Allow_UserCreditExhausted(t *testing.T) {
	g := New(2, 100)

	require.NoError(t, g.Allow(context.Background(), "user-1", "10.0.0.1"))
	require.NoError(t, g.Allow(context.Background(), "user-1", "10.0.0.2"))

	err := g.Allow(context.Background(), "user-1", "10.0.0.3")
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.CodeSOSCreditExhausted, appErr.Code)
}

func TestGate_Allow_DifferentUsersHaveIndependentCredit(t *testing.T) {
	g := New(1, 100)

	require.NoError(t, g.Allow(context.Background(), "user-1", "10.0.0.1"))
	require.NoError(t, g.Allow(context.Background(), "user-2", "10.0.0.1"))
}

func TestGate_Allow_PerIPLimitExhausted(t *testing.T) {
	g := New(100, 1)

	require.NoError(t, g.Allow(context.Background(), "user-1", "10.0.0.1"))

	// a second distinct user sharing the same IP still trips the
	// per-IP bucket even though their own credit is untouched.
	err := g.Allow(context.Background(), "user-2", "10.0.0.1")
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.CodeSOSCreditExhausted, appErr.Code)
}
