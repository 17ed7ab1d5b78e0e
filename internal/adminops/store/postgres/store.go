// Package postgres implements the admin user mutations on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourcaldo/indexnow-mono-sub007/pkg/sentinel"
)

// Store mutates user rows on behalf of adminops.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed admin user store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpdateRole sets the user's role.
func (s *Store) UpdateRole(ctx context.Context, userID uuid.UUID, role string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_profiles SET role = $2 WHERE user_id = $1`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("update role for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the user's credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_credentials SET password_hash = $2, updated_at = now() WHERE user_id = $1`,
		userID, hash,
	)
	if err != nil {
		return fmt.Errorf("update password for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return nil
}

// ResetDailyQuota zeroes today's usage.
func (s *Store) ResetDailyQuota(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_plan_states
		 SET daily_quota_used = 0, quota_reset_date = current_date
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("reset quota for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return nil
}

// ExtendSubscription pushes the subscription end out by days, from now when
// the subscription already lapsed.
func (s *Store) ExtendSubscription(ctx context.Context, userID uuid.UUID, days int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_plan_states
		 SET subscription_end = GREATEST(subscription_end, now()) + make_interval(days => $2)
		 WHERE user_id = $1`,
		userID, days,
	)
	if err != nil {
		return fmt.Errorf("extend subscription for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return nil
}
