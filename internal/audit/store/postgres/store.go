// Package postgres persists audit records to the audit_records table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
)

// Store implements audit.Sink on PostgreSQL. Records are append-only; there
// is deliberately no update or delete path here.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed audit sink.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts one audit record. Duplicate IDs are ignored so a retried
// flush stays idempotent.
func (s *Store) Record(ctx context.Context, rec audit.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	filter, err := json.Marshal(rec.Filter)
	if err != nil {
		return fmt.Errorf("marshal audit filter: %w", err)
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			id, actor_id, operation, reason, source, metadata,
			ip_address, user_agent,
			target, kind, columns, filter, payload,
			succeeded, error_message, result_origin,
			started_at, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16,
			$17, $18
		)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.ActorID,
		rec.Operation,
		rec.Reason,
		rec.Source,
		metadata,
		rec.IPAddress,
		rec.UserAgent,
		rec.Target,
		rec.Kind,
		rec.Columns,
		filter,
		payload,
		rec.Succeeded,
		rec.ErrorMessage,
		rec.ResultOrigin,
		rec.StartedAt,
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
