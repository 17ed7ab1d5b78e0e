package secureops

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims carried by an authenticated caller session.
type SessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session is an authenticated caller identity handed to session-scoped
// operations. The raw token travels with it so the store client can execute
// under the caller's row-level authorization instead of the service role.
type Session struct {
	Token   string
	ActorID string
	Claims  *SessionClaims
}

// ParseSession validates a signed session token and extracts the caller
// identity. HMAC only; the signing key is shared with the auth service.
func ParseSession(token string, signingKey []byte) (*Session, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return &Session{
		Token:   token,
		ActorID: claims.Subject,
		Claims:  claims,
	}, nil
}
