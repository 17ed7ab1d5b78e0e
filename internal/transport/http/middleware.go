package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/secureops"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

// RequestContext copies chi's request ID into our transport-agnostic context
// accessors so services never import chi.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware authenticates the admin session carried as a bearer token.
type AuthMiddleware struct {
	signingKey []byte
	logger     *slog.Logger
}

// NewAuthMiddleware builds the session middleware.
func NewAuthMiddleware(signingKey string, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{signingKey: []byte(signingKey), logger: logger}
}

// RequireSession rejects requests without a valid session token and stores
// the parsed session plus actor ID in the context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		sess, err := secureops.ParseSession(token, m.signingKey)
		if err != nil {
			m.logger.Warn("session rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := requestcontext.WithActorID(r.Context(), sess.ActorID)
		ctx = requestcontext.WithSessionToken(ctx, sess.Token)
		ctx = withSession(ctx, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
