// Package httptransport is the thin HTTP layer over adminops. Handlers only
// decode, delegate and encode so transport concerns stay isolated from the
// gateway and billing logic.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ourcaldo/indexnow-mono-sub007/pkg/platform/middleware/metadata"
)

// NewRouter wires the admin endpoints. Every mutation route sits behind the
// session middleware; health and metrics stay open.
func NewRouter(h *Handler, auth *AuthMiddleware) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(RequestContext)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/me", func(r chi.Router) {
		r.Use(auth.RequireSession)
		r.Post("/password", h.handleChangeOwnPassword)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(auth.RequireSession)
		r.Post("/users/{userID}/role", h.handleEscalateRole)
		r.Post("/users/{userID}/password", h.handleResetPassword)
		r.Post("/users/{userID}/quota-reset", h.handleResetQuota)
		r.Post("/users/{userID}/subscription/extend", h.handleExtendSubscription)
		r.Post("/orders/{orderID}/transition", h.handleTransitionOrder)
	})

	return r
}
