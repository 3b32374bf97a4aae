package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevModeParsesTenantRoleUnit(t *testing.T) {
	v := NewVerifier("dev", "")
	p, err := v.Verify("t_demo:Coordinator")
	require.NoError(t, err)
	assert.Equal(t, "t_demo", p.Tenant)
	assert.Equal(t, "coordinator", p.Role)

	p, err = v.Verify("t_demo:volunteer:unit-7")
	require.NoError(t, err)
	assert.Equal(t, "unit-7", p.UnitID)

	_, err = v.Verify("garbage")
	assert.Error(t, err)
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHMACModeVerifiesSignature(t *testing.T) {
	v := NewVerifier("hmac", "topsecret")
	good := signHS256(t, "topsecret", jwt.MapClaims{
		"tenant": "t1", "role": "admin", "unit": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	p, err := v.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, "t1", p.Tenant)
	assert.Equal(t, "admin", p.Role)
	assert.Equal(t, "u1", p.UnitID)

	bad := signHS256(t, "wrong", jwt.MapClaims{"tenant": "t1", "role": "admin"})
	_, err = v.Verify(bad)
	assert.Error(t, err)
}

func TestHMACModeRejectsExpiredAndMissingTenant(t *testing.T) {
	v := NewVerifier("hmac", "topsecret")
	expired := signHS256(t, "topsecret", jwt.MapClaims{
		"tenant": "t1", "role": "admin",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := v.Verify(expired)
	assert.Error(t, err)

	noTenant := signHS256(t, "topsecret", jwt.MapClaims{"role": "admin"})
	_, err = v.Verify(noTenant)
	assert.Error(t, err)
}

func TestCanWrite(t *testing.T) {
	assert.True(t, Principal{Role: "admin"}.CanWrite())
	assert.True(t, Principal{Role: "coordinator"}.CanWrite())
	assert.False(t, Principal{Role: "volunteer"}.CanWrite())
	assert.False(t, Principal{Role: "resident"}.CanWrite())
}
