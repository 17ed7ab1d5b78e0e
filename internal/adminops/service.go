// Package adminops implements the privileged mutations the control plane
// routes through the secure operation gateway: role escalation, password
// reset, quota reset, subscription extension and payment transitions.
package adminops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/billing"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/ratelimit"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/secureops"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/platform/middleware/metadata"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

// UserStore is the slice of the relational store adminops mutates.
type UserStore interface {
	UpdateRole(ctx context.Context, userID uuid.UUID, role string) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
	ResetDailyQuota(ctx context.Context, userID uuid.UUID) error
	ExtendSubscription(ctx context.Context, userID uuid.UUID, days int) error
}

// RateLimitedError tells the caller to back off; the transport layer turns it
// into a 429 with Retry-After.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Service wires the gateway, rate limiter and billing engine behind the admin
// surface. Every mutation goes through the gateway so it is audited and
// resilience-wrapped; every call is counted against the actor/IP window.
type Service struct {
	gateway *secureops.Gateway
	limiter ratelimit.Limiter
	policy  ratelimit.Policy
	engine  *billing.Engine
	users   UserStore
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds the admin operations service.
func New(gateway *secureops.Gateway, limiter ratelimit.Limiter, policy ratelimit.Policy, engine *billing.Engine, users UserStore, opts ...Option) *Service {
	s := &Service{
		gateway: gateway,
		limiter: limiter,
		policy:  policy,
		engine:  engine,
		users:   users,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EscalateRole changes a user's role. Elevated path: normal sessions cannot
// touch other users' roles, so the reason is mandatory and lands in the audit
// trail.
func (s *Service) EscalateRole(ctx context.Context, actorID string, targetUser uuid.UUID, role, reason string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	opCtx := s.operationContext(ctx, actorID, "escalate_role", reason)
	desc := secureops.Descriptor{
		Target:  "user_profiles",
		Kind:    secureops.KindUpdate,
		Columns: []string{"role"},
		Filter:  map[string]any{"user_id": targetUser.String()},
		Payload: map[string]any{"role": role},
	}
	_, err := s.gateway.Execute(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return nil, s.users.UpdateRole(ctx, targetUser, role)
	})
	return err
}

// ResetPassword hashes and stores a new password for a user. The hash is
// computed outside the gateway so a retry never re-runs bcrypt.
func (s *Service) ResetPassword(ctx context.Context, actorID string, targetUser uuid.UUID, newPassword, reason string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	opCtx := s.operationContext(ctx, actorID, "reset_password", reason)
	desc := secureops.Descriptor{
		Target:  "user_credentials",
		Kind:    secureops.KindUpdate,
		Columns: []string{"password_hash"},
		Filter:  map[string]any{"user_id": targetUser.String()},
		// The payload deliberately omits the hash; the audit trail records
		// that a credential changed, never the credential.
	}
	_, err = s.gateway.Execute(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return nil, s.users.UpdatePasswordHash(ctx, targetUser, string(hash))
	})
	return err
}

// ResetDailyQuota zeroes a user's daily usage counter.
func (s *Service) ResetDailyQuota(ctx context.Context, actorID string, targetUser uuid.UUID, reason string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	opCtx := s.operationContext(ctx, actorID, "reset_daily_quota", reason)
	desc := secureops.Descriptor{
		Target:  "user_plan_states",
		Kind:    secureops.KindUpdate,
		Columns: []string{"daily_quota_used", "quota_reset_date"},
		Filter:  map[string]any{"user_id": targetUser.String()},
		Payload: map[string]any{"daily_quota_used": 0},
	}
	_, err := s.gateway.Execute(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return nil, s.users.ResetDailyQuota(ctx, targetUser)
	})
	return err
}

// ExtendSubscription pushes a user's subscription end out by the given number
// of days, outside the normal payment flow (goodwill credit, outage refund).
func (s *Service) ExtendSubscription(ctx context.Context, actorID string, targetUser uuid.UUID, days int, reason string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	if days <= 0 {
		return &secureops.ValidationError{Field: "days", Message: "must be positive"}
	}
	opCtx := s.operationContext(ctx, actorID, "extend_subscription", reason)
	desc := secureops.Descriptor{
		Target:  "user_plan_states",
		Kind:    secureops.KindUpdate,
		Columns: []string{"subscription_end"},
		Filter:  map[string]any{"user_id": targetUser.String()},
		Payload: map[string]any{"extend_days": days},
	}
	_, err := s.gateway.Execute(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return nil, s.users.ExtendSubscription(ctx, targetUser, days)
	})
	return err
}

// ChangeOwnPassword lets an authenticated user rotate their own credential.
// This runs on the session-scoped gateway path: the store sees the caller's
// own identity, not the elevated service identity.
func (s *Service) ChangeOwnPassword(ctx context.Context, sess *secureops.Session, newPassword string) error {
	if sess == nil {
		return &secureops.ValidationError{Field: "session", Message: "is required"}
	}
	if err := s.allow(ctx, sess.ActorID); err != nil {
		return err
	}
	userID, err := uuid.Parse(sess.ActorID)
	if err != nil {
		return &secureops.ValidationError{Field: "session.subject", Message: "is not a user id"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	opCtx := s.operationContext(ctx, sess.ActorID, "change_own_password", "self-service password change")
	desc := secureops.Descriptor{
		Target:  "user_credentials",
		Kind:    secureops.KindUpdate,
		Columns: []string{"password_hash"},
		Filter:  map[string]any{"user_id": userID.String()},
	}
	_, err = s.gateway.ExecuteWithSession(ctx, sess, opCtx, desc, func(ctx context.Context, _ *secureops.Session) (any, error) {
		return nil, s.users.UpdatePasswordHash(ctx, userID, string(hash))
	})
	return err
}

// TransitionPayment converts a completed payment into an activated plan (or
// marks it failed) through the billing engine. The engine runs as one
// indivisible unit, so the gateway wraps it as a single operation; retrying
// it is safe because the second attempt exits via the terminal-status guard.
func (s *Service) TransitionPayment(ctx context.Context, actorID string, orderID uuid.UUID, newStatus billing.OrderStatus, notes string) (*billing.SubscriptionOrder, error) {
	if err := s.allow(ctx, actorID); err != nil {
		return nil, err
	}
	opCtx := s.operationContext(ctx, actorID, "transition_payment", "payment status transition")
	desc := secureops.Descriptor{
		Target:  "subscription_orders",
		Kind:    secureops.KindUpdate,
		Columns: []string{"status", "verified_by", "verified_at", "processed_at"},
		Filter:  map[string]any{"order_id": orderID.String()},
		Payload: map[string]any{"status": string(newStatus)},
	}
	result, err := s.gateway.Execute(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return s.engine.ActivateOrder(ctx, billing.ActivationParams{
			OrderID:    orderID,
			NewStatus:  newStatus,
			ApproverID: actorID,
			Notes:      notes,
		})
	})
	if err != nil {
		return nil, err
	}
	order, ok := result.Value.(*billing.SubscriptionOrder)
	if !ok {
		return nil, fmt.Errorf("unexpected transition result %T", result.Value)
	}
	return order, nil
}

// allow counts the call against the actor/IP fixed window.
func (s *Service) allow(ctx context.Context, actorID string) error {
	if s.limiter == nil {
		return nil
	}
	key := ratelimit.ActorKey(actorID, requestcontext.ClientIP(ctx))
	result, err := s.limiter.Allow(ctx, key, s.policy)
	if err != nil {
		// Fail open: losing rate limiting is better than losing admin access.
		s.logger.Error("rate limit check failed", "error", err, "key", key)
		return nil
	}
	if !result.Allowed {
		return &RateLimitedError{RetryAfter: result.RetryAfter}
	}
	return nil
}

// operationContext assembles the actor/intent record from the request
// context, summarizing the user agent for audit readability.
func (s *Service) operationContext(ctx context.Context, actorID, operation, reason string) secureops.Context {
	return secureops.Context{
		ActorID:   actorID,
		Operation: operation,
		Reason:    reason,
		Source:    "admin",
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: metadata.SummarizeUserAgent(requestcontext.UserAgent(ctx)),
		Metadata: map[string]any{
			"request_id": requestcontext.RequestID(ctx),
		},
	}
}
