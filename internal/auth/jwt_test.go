package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	userID := uuid.New()

	token, err := svc.Generate(userID, "m1@kmt.example", "marshal")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "m1@kmt.example", claims.Email)
	assert.Equal(t, "marshal", claims.Role)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 24).Generate(uuid.New(), "m1@kmt.example", "marshal")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsGarbage(t *testing.T) {
	_, err := NewJWTService("secret", 24).Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
