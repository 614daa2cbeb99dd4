package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

const outboundColumns = `id, tenant_id, draft_id, member_id, content, status, scheduled_for, sent_at, external_id, error,
	created_at, updated_at`

const outboundByDraftQuery = `SELECT ` + outboundColumns + ` FROM outbound_messages WHERE draft_id = ?`

// OutboxRepository handles database operations for outbound messages.
type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboundMessage, error) {
	return r.getOne(ctx, r.db, `SELECT `+outboundColumns+` FROM outbound_messages WHERE id = ?`, id)
}

func (r *OutboxRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.OutboundMessage, error) {
	var msg domain.OutboundMessage
	if err := sqlx.GetContext(ctx, q, &msg, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbound message: %w", err)
	}
	return &msg, nil
}

func insertOutbound(ctx context.Context, e sqlx.ExtContext, msg *domain.OutboundMessage) error {
	query := `
		INSERT INTO outbound_messages (` + outboundColumns + `)
		VALUES (:id, :tenant_id, :draft_id, :member_id, :content, :status, :scheduled_for, :sent_at, :external_id, :error,
			:created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, e, query, msg); err != nil {
		return fmt.Errorf("failed to create outbound message: %w", err)
	}
	return nil
}

// createOrGet inserts msg unless its draft already has a message, in which
// case the existing row is returned with created=false.
func (r *OutboxRepository) createOrGet(ctx context.Context, tx *sqlx.Tx, msg *domain.OutboundMessage) (*domain.OutboundMessage, bool, error) {
	if err := insertOutbound(ctx, tx, msg); err != nil {
		if !IsDuplicateKey(err) {
			return nil, false, err
		}
		existing, getErr := r.getOne(ctx, tx, outboundByDraftQuery, msg.DraftID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	return msg, true, nil
}

// PromoteDraft flips a pending draft to sent and enqueues its outbound
// message in one transaction. created is true only for the call that
// inserted the row; every other call gets the draft's existing message, or
// nil when the draft left pending without one.
func (r *OutboxRepository) PromoteDraft(ctx context.Context, draftID string, msg *domain.OutboundMessage) (*domain.OutboundMessage, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx,
		`UPDATE message_drafts SET status = 'sent', updated_at = ? WHERE id = ? AND status = 'pending'`,
		msg.CreatedAt, draftID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark draft sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		existing, err := r.getOne(ctx, tx, outboundByDraftQuery, draftID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	// A duplicate keeps the draft flip and returns the existing message.
	out, created, err := r.createOrGet(ctx, tx, msg)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, created, nil
}

// ListByStatuses returns the tenant's messages in any of statuses in queue order.
func (r *OutboxRepository) ListByStatuses(ctx context.Context, tenantID string, statuses []domain.OutboundStatus, limit int) ([]domain.OutboundMessage, error) {
	query, args, err := sqlx.In(`
		SELECT `+outboundColumns+`
		FROM outbound_messages
		WHERE tenant_id = ? AND status IN (?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, tenantID, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build status query: %w", err)
	}

	var messages []domain.OutboundMessage
	if err := r.db.SelectContext(ctx, &messages, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list outbound messages: %w", err)
	}
	return messages, nil
}

// ListDue returns ready messages whose schedule has come.
func (r *OutboxRepository) ListDue(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboundMessage, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_messages
		WHERE tenant_id = ? AND status = 'ready' AND (scheduled_for IS NULL OR scheduled_for <= ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	var messages []domain.OutboundMessage
	if err := r.db.SelectContext(ctx, &messages, query, tenantID, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due messages: %w", err)
	}
	return messages, nil
}

// MarkReady moves a queued or blocked message to ready. Terminal rows are
// never touched; false means nothing changed.
func (r *OutboxRepository) MarkReady(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'ready', scheduled_for = ?, error = NULL, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'blocked')`, now, now, id)
}

// MarkBlocked moves a queued or blocked message to blocked with reason.
func (r *OutboxRepository) MarkBlocked(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'blocked', error = ?, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'blocked')`, reason, now, id)
}

// MarkError moves a ready message to error after a failed dispatch.
func (r *OutboxRepository) MarkError(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'error', error = ?, updated_at = ?
		WHERE id = ? AND status = 'ready'`, reason, now, id)
}

// Requeue is the manual path from error or blocked back to queued.
func (r *OutboxRepository) Requeue(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'queued', error = NULL, scheduled_for = NULL, updated_at = ?
		WHERE id = ? AND status IN ('error', 'blocked')`, now, id)
}

// MarkSentManually records a send done outside the dispatcher.
func (r *OutboxRepository) MarkSentManually(ctx context.Context, id, externalID string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'sent', sent_at = ?, external_id = ?, error = NULL, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'ready', 'blocked', 'error')`, now, externalID, now, id)
}

// OverrideBlock releases a blocked message to the dispatcher.
func (r *OutboxRepository) OverrideBlock(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.execGuarded(ctx, `
		UPDATE outbound_messages
		SET status = 'ready', scheduled_for = ?, error = NULL, updated_at = ?
		WHERE id = ? AND status = 'blocked'`, now, now, id)
}

func (r *OutboxRepository) execGuarded(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update outbound message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// Dispatch applies every side effect of a successful send in one
// transaction: the message, the interaction log, the member and the thread.
// domain.ErrInvalidTransition means the message was no longer ready.
func (r *OutboxRepository) Dispatch(ctx context.Context, p domain.DispatchParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE outbound_messages
		SET status = 'sent', sent_at = ?, external_id = ?, error = NULL, updated_at = ?
		WHERE id = ? AND status = 'ready'`,
		p.Now, p.ExternalID, p.Now, p.Message.ID)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrInvalidTransition
	}

	i := p.Interaction
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (id, tenant_id, member_id, type, outbound_message_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.TenantID, i.MemberID, i.Type, i.OutboundMessageID, i.Content, i.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE members SET last_contacted_at = ?, last_value_drop_at = ?
		WHERE tenant_id = ? AND id = ?`,
		p.Now, p.Now, p.Message.TenantID, p.Message.MemberID); err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}

	stamp := domain.FormatTimestamp(p.Now)
	if _, err := tx.ExecContext(ctx, `
		UPDATE slack_dm_threads
		SET last_message_at = GREATEST(COALESCE(last_message_at, ?), ?),
		    last_cm_message_at = GREATEST(COALESCE(last_cm_message_at, ?), ?)
		WHERE tenant_id = ? AND member_id = ?`,
		stamp, stamp, p.Now, p.Now, p.Message.TenantID, p.Message.MemberID); err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dispatch: %w", err)
	}
	return nil
}

func (r *OutboxRepository) GetAll(
	ctx context.Context,
	status *domain.OutboundStatus,
	page, pageSize int,
) ([]domain.OutboundMessage, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var messages []domain.OutboundMessage

	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = ?"
		args = append(args, *status)
	}

	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM outbound_messages "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count outbound messages: %w", err)
	}

	query := `SELECT ` + outboundColumns + ` FROM outbound_messages ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &messages, query, append(args, pageSize, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to get outbound messages: %w", err)
	}

	return messages, totalCount, nil
}

// GetStats returns message counts by status.
func (r *OutboxRepository) GetStats(ctx context.Context) (domain.OutboxStats, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0)  AS queued,
			COALESCE(SUM(CASE WHEN status = 'ready' THEN 1 ELSE 0 END), 0)   AS ready,
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0) AS blocked,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)   AS error
		FROM outbound_messages
	`

	var stats domain.OutboxStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Warnf("Failed to roll back transaction: %v", err)
	}
}
