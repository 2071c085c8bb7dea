package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/apperr"
)

const testSecret = "test-secret"

func signToken(t *testing.T, c claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestValidate_ValidToken(t *testing.T) {
	a := New(testSecret, time.Minute)
	token := signToken(t, claims{
		UserID:    "user-1",
		VehicleID: "veh-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, err := a.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "veh-1", id.VehicleID)
}

func TestValidate_EmptyToken(t *testing.T) {
	a := New(testSecret, time.Minute)
	_, err := a.Validate(context.Background(), "")
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindAuth, appErr.Kind)
}

func TestValidate_ExpiredToken(t *testing.T) {
	a := New(testSecret, time.Minute)
	token := signToken(t, claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := a.Validate(context.Background(), token)
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.CodeTokenExpired, appErr.Code)
}

func TestValidate_WrongSignature(t *testing.T) {
	a := New(testSecret, time.Minute)
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: "user-1"})
	signed, err := other.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	_, err = a.Validate(context.Background(), signed)
	assert.Error(t, err)
}

func TestValidate_CachesDecodedIdentity(t *testing.T) {
	a := New(testSecret, time.Minute)
	token := signToken(t, claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	first, err := a.Validate(context.Background(), token)
	require.NoError(t, err)

	// a cache hit must not require re-parsing; verifying this behaviorally
	// would need instrumentation, so instead assert the second call
	// returns the identical identity without error.
	second, err := a.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
