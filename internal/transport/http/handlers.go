package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/adminops"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/billing"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/secureops"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

type sessionKey struct{}

func withSession(ctx context.Context, sess *secureops.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFrom(ctx context.Context) *secureops.Session {
	sess, _ := ctx.Value(sessionKey{}).(*secureops.Session)
	return sess
}

// Handler delegates to adminops.
type Handler struct {
	admin  *adminops.Service
	logger *slog.Logger
}

// NewHandler builds the admin HTTP handler.
func NewHandler(admin *adminops.Service, logger *slog.Logger) *Handler {
	return &Handler{admin: admin, logger: logger}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type roleRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

func (h *Handler) handleEscalateRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.admin.EscalateRole(r.Context(), requestcontext.ActorID(r.Context()), userID, req.Role, req.Reason)
	h.respond(w, r, err, map[string]string{"status": "updated"})
}

type passwordRequest struct {
	NewPassword string `json:"new_password"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.admin.ResetPassword(r.Context(), requestcontext.ActorID(r.Context()), userID, req.NewPassword, req.Reason)
	h.respond(w, r, err, map[string]string{"status": "updated"})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleResetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req reasonRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.admin.ResetDailyQuota(r.Context(), requestcontext.ActorID(r.Context()), userID, req.Reason)
	h.respond(w, r, err, map[string]string{"status": "reset"})
}

type extendRequest struct {
	Days   int    `json:"days"`
	Reason string `json:"reason"`
}

func (h *Handler) handleExtendSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req extendRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.admin.ExtendSubscription(r.Context(), requestcontext.ActorID(r.Context()), userID, req.Days, req.Reason)
	h.respond(w, r, err, map[string]string{"status": "extended"})
}

type ownPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (h *Handler) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	var req ownPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.admin.ChangeOwnPassword(r.Context(), sessionFrom(r.Context()), req.NewPassword)
	h.respond(w, r, err, map[string]string{"status": "updated"})
}

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type transitionResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	VerifiedBy  string `json:"verified_by"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

func (h *Handler) handleTransitionOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := h.admin.TransitionPayment(r.Context(), requestcontext.ActorID(r.Context()), orderID, billing.OrderStatus(req.Status), req.Notes)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	resp := transitionResponse{
		OrderID:    order.ID.String(),
		Status:     string(order.Status),
		VerifiedBy: order.VerifiedBy,
	}
	if order.ProcessedAt != nil {
		resp.ProcessedAt = order.ProcessedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// respond writes the happy-path body or translates err.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error, body any) {
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// writeFailure maps service errors to HTTP statuses. End users see generic
// messages; the full context lives in the audit trail and logs.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *secureops.ValidationError
		rl *adminops.RateLimitedError
		ts *billing.TerminalStatusError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "too many requests")
	case errors.As(err, &ts):
		// Expected control flow: duplicate webhook or double click.
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":          "terminal_status",
			"current_status": string(ts.Current),
		})
	case errors.Is(err, billing.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	case errors.Is(err, secureops.ErrDependencyUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		h.logger.Error("admin operation failed",
			"path", r.URL.Path,
			"actor", requestcontext.ActorID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
