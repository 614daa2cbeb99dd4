package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, e *domain.InboundEvent) error {
	query := `INSERT INTO slack_events (id, tenant_id, payload, received_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.TenantID, e.Payload, e.ReceivedAt); err != nil {
		return fmt.Errorf("failed to store slack event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListUnprocessed(ctx context.Context, tenantID string, limit int) ([]domain.InboundEvent, error) {
	query := `
		SELECT id, tenant_id, payload, received_at, processed_at, processing_error
		FROM slack_events
		WHERE tenant_id = ? AND processed_at IS NULL
		ORDER BY received_at ASC
		LIMIT ?
	`
	var events []domain.InboundEvent
	if err := r.db.SelectContext(ctx, &events, query, tenantID, limit); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	return events, nil
}

// MarkProcessed consumes the event; processingError is nil on success.
func (r *EventRepository) MarkProcessed(ctx context.Context, id string, at time.Time, processingError *string) error {
	query := `UPDATE slack_events SET processed_at = ?, processing_error = ? WHERE id = ? AND processed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, at, processingError, id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
