// Package postgres implements the order activation transition as a single
// database transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/billing"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

// Store runs order transitions on PostgreSQL. The order row is locked with
// SELECT ... FOR UPDATE for the full duration of the transition, so a crash
// between the order update and the plan activation cannot leave a paid order
// without access. Either both land or neither does.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed transition store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ActivateOrderWithPlan implements billing.Store.
func (s *Store) ActivateOrderWithPlan(ctx context.Context, params billing.ActivationParams) (*billing.SubscriptionOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin activation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, params)
	if err != nil {
		return nil, err
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
	}

	query := `
		UPDATE subscription_orders
		SET status = $2, verified_by = $3, verified_at = $4, processed_at = $5, notes = $6
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		order.ID, order.Status, order.VerifiedBy, order.VerifiedAt, order.ProcessedAt, order.Notes,
	); err != nil {
		return nil, fmt.Errorf("update order %s: %w", order.ID, err)
	}

	if params.NewStatus == billing.StatusCompleted {
		if err := activatePlan(ctx, tx, order, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activation tx: %w", err)
	}
	return order, nil
}

// lockOrder reads the order under a row lock. Blocks until any concurrent
// activation of the same order commits or rolls back.
func lockOrder(ctx context.Context, tx pgx.Tx, params billing.ActivationParams) (*billing.SubscriptionOrder, error) {
	query := `
		SELECT id, user_id, package_id, status, billing_period, amount,
		       notes, verified_by, verified_at, processed_at, created_at
		FROM subscription_orders
		WHERE id = $1
		FOR UPDATE
	`
	var (
		order    billing.SubscriptionOrder
		status   string
		period   string
		verified *string
	)
	err := tx.QueryRow(ctx, query, params.OrderID).Scan(
		&order.ID, &order.UserID, &order.PackageID, &status, &period, &order.Amount,
		&order.Notes, &verified, &order.VerifiedAt, &order.ProcessedAt, &order.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", params.OrderID, err)
	}
	order.Status = billing.OrderStatus(status)
	order.BillingPeriod = billing.ParsePeriod(period)
	if verified != nil {
		order.VerifiedBy = *verified
	}
	return &order, nil
}

// activatePlan applies the paid-for access in the same transaction: expiry
// extended one billing period past max(now, current expiry), package
// switched, daily quota zeroed with today's reset date.
func activatePlan(ctx context.Context, tx pgx.Tx, order *billing.SubscriptionOrder, now time.Time) error {
	var currentExpiry *time.Time
	err := tx.QueryRow(ctx,
		`SELECT subscription_end FROM user_plan_states WHERE user_id = $1 FOR UPDATE`,
		order.UserID,
	).Scan(&currentExpiry)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read plan state for user %s: %w", order.UserID, err)
	}

	expiry := billing.NextExpiry(now, currentExpiry, order.BillingPeriod)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	query := `
		INSERT INTO user_plan_states (
			user_id, package_id, subscription_start, subscription_end,
			daily_quota_used, quota_reset_date
		) VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			package_id = EXCLUDED.package_id,
			subscription_start = COALESCE(user_plan_states.subscription_start, EXCLUDED.subscription_start),
			subscription_end = EXCLUDED.subscription_end,
			daily_quota_used = 0,
			quota_reset_date = EXCLUDED.quota_reset_date
	`
	if _, err := tx.Exec(ctx, query,
		order.UserID, order.PackageID, now, expiry, today,
	); err != nil {
		return fmt.Errorf("activate plan for user %s: %w", order.UserID, err)
	}
	return nil
}
