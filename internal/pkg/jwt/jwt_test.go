package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("tenant-1", "ops", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.Equal(t, "ops", claims.Subject)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("tenant-1", "", []byte("right"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("wrong"))
	require.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	token, err := GenerateToken("tenant-1", "", []byte("secret"), -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("secret"))
	require.Error(t, err)
}

func TestTokenMissingTenant(t *testing.T) {
	token, err := GenerateToken("", "", []byte("secret"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("secret"))
	require.Error(t, err)
}
