package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ActivationParams carry one order transition request.
type ActivationParams struct {
	OrderID    uuid.UUID
	NewStatus  OrderStatus
	ApproverID string
	Notes      string
}

// Store executes the order transition as one indivisible unit against the
// backing store, with the order row pessimistically locked for the duration.
// Two concurrent activations of the same order must serialize; the second
// observes the terminal status from the first.
type Store interface {
	ActivateOrderWithPlan(ctx context.Context, params ActivationParams) (*SubscriptionOrder, error)
}

// Engine validates transition requests and delegates the atomic work to the
// store. It exists so callers get one place for input checks and logging
// regardless of which store backs it.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds a transition engine over store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ActivateOrder drives the order state machine:
// pending/processing -> completed | failed (terminal). A completed order
// additionally activates the linked plan in the same transaction, extending
// the expiry and resetting the daily quota. Returns the fully updated order.
func (e *Engine) ActivateOrder(ctx context.Context, params ActivationParams) (*SubscriptionOrder, error) {
	if params.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if params.ApproverID == "" {
		return nil, fmt.Errorf("approver id is required")
	}
	if !params.NewStatus.IsValid() {
		return nil, fmt.Errorf("invalid status %q", params.NewStatus)
	}
	if !params.NewStatus.IsTerminal() {
		return nil, fmt.Errorf("transition target must be completed or failed, got %q", params.NewStatus)
	}

	order, err := e.store.ActivateOrderWithPlan(ctx, params)
	if err != nil {
		return nil, err
	}

	e.logger.Info("order transitioned",
		"order_id", order.ID,
		"status", order.Status,
		"verified_by", order.VerifiedBy,
	)
	return order, nil
}
