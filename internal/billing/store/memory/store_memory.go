// Package memory mirrors the PostgreSQL transition semantics in process
// memory: per-order serialization, terminal-status protection, and plan
// activation applied together or not at all.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/billing"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

// Store is an in-memory billing store for unit tests and demo mode.
type Store struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*billing.SubscriptionOrder
	plans  map[uuid.UUID]*billing.UserPlanState
}

// New creates an empty in-memory billing store.
func New() *Store {
	return &Store{
		orders: make(map[uuid.UUID]*billing.SubscriptionOrder),
		plans:  make(map[uuid.UUID]*billing.UserPlanState),
	}
}

// PutOrder seeds an order. Test setup helper.
func (s *Store) PutOrder(order billing.SubscriptionOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := order
	s.orders[order.ID] = &cp
}

// PutPlan seeds a user's plan state. Test setup helper.
func (s *Store) PutPlan(plan billing.UserPlanState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := plan
	s.plans[plan.UserID] = &cp
}

// Plan returns a copy of the user's plan state, or nil when absent.
func (s *Store) Plan(userID uuid.UUID) *billing.UserPlanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[userID]
	if !ok {
		return nil
	}
	cp := *plan
	return &cp
}

// ActivateOrderWithPlan implements billing.Store. The store mutex stands in
// for the row lock: concurrent activations of the same order serialize, and
// the loser observes the terminal status the winner wrote.
func (s *Store) ActivateOrderWithPlan(ctx context.Context, params billing.ActivationParams) (*billing.SubscriptionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[params.OrderID]
	if !ok {
		return nil, billing.ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return nil, &billing.TerminalStatusError{Current: order.Status}
	}

	now := requestcontext.Now(ctx).UTC()
	order.Status = params.NewStatus
	order.VerifiedBy = params.ApproverID
	order.VerifiedAt = &now
	if params.Notes != "" {
		order.Notes = params.Notes
	}
	if params.NewStatus == billing.StatusCompleted {
		order.ProcessedAt = &now
		s.activatePlan(order, now)
	}

	cp := *order
	return &cp, nil
}

func (s *Store) activatePlan(order *billing.SubscriptionOrder, now time.Time) {
	plan, ok := s.plans[order.UserID]
	if !ok {
		start := now
		plan = &billing.UserPlanState{UserID: order.UserID, SubscriptionStart: &start}
		s.plans[order.UserID] = plan
	}

	var currentExpiry *time.Time
	if plan.SubscriptionEnd != nil {
		currentExpiry = plan.SubscriptionEnd
	}
	expiry := billing.NextExpiry(now, currentExpiry, order.BillingPeriod)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	plan.PackageID = order.PackageID
	plan.SubscriptionEnd = &expiry
	plan.DailyQuotaUsed = 0
	plan.QuotaResetDate = &today
}
