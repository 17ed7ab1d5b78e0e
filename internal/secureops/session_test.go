package secureops

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims *SessionClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseSession(t *testing.T) {
	claims := &SessionClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, claims, jwt.SigningMethodHS256, testKey)

		sess, err := ParseSession(token, testKey)
		require.NoError(t, err)
		require.Equal(t, "user-42", sess.ActorID)
		require.Equal(t, "admin", sess.Claims.Role)
		require.Equal(t, token, sess.Token, "the raw token travels with the session")
	})

	t.Run("wrong key", func(t *testing.T) {
		token := signToken(t, claims, jwt.SigningMethodHS256, []byte("other-key"))

		_, err := ParseSession(token, testKey)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := &SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token := signToken(t, expired, jwt.SigningMethodHS256, testKey)

		_, err := ParseSession(token, testKey)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseSession("not-a-token", testKey)
		require.Error(t, err)
	})
}
