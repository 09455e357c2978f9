package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsFor(uid string, roles []string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))

	token, err := svc.Sign(claimsFor("u-1", []string{"warehouse_manager"}, time.Hour))
	require.NoError(t, err)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.UserID)
	assert.Equal(t, []string{"warehouse_manager"}, user.Roles)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	other := NewJWTService(DefaultJWTConfig("other"))

	expired, err := svc.Sign(claimsFor("u-1", nil, -time.Hour))
	require.NoError(t, err)
	wrongKey, err := other.Sign(claimsFor("u-1", nil, time.Hour))
	require.NoError(t, err)
	noSubject, err := svc.Sign(claimsFor("", nil, time.Hour))
	require.NoError(t, err)

	foreign := claimsFor("u-1", nil, time.Hour)
	foreign.Issuer = "someone-else"
	wrongIssuer, err := svc.Sign(foreign)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"no subject":   noSubject,
		"wrong issuer": wrongIssuer,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}
