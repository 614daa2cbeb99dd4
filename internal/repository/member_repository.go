package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

const memberColumns = `id, tenant_id, name, status, contact_state, last_contacted_at, last_value_drop_at, created_at, updated_at`

type MemberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Member, error) {
	var member domain.Member
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = ? AND id = ?`
	if err := r.db.GetContext(ctx, &member, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

// ListDueForValueDrop returns active, non-muted members whose last value
// drop is older than dueBefore (or missing) and who have no live draft
// (pending, sent or merged) created since dueBefore. A promoted draft keeps
// the member excluded until the dispatcher refreshes last_value_drop_at.
func (r *MemberRepository) ListDueForValueDrop(ctx context.Context, tenantID string, dueBefore time.Time, limit int) ([]domain.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		WHERE m.tenant_id = ?
		  AND m.status = 'active'
		  AND m.contact_state <> 'muted'
		  AND (m.last_value_drop_at IS NULL OR m.last_value_drop_at < ?)
		  AND NOT EXISTS (
			SELECT 1 FROM message_drafts d
			WHERE d.member_id = m.id AND d.status IN ('pending', 'sent', 'merged') AND d.created_at >= ?
		  )
		ORDER BY m.created_at ASC
		LIMIT ?
	`

	var members []domain.Member
	if err := r.db.SelectContext(ctx, &members, query, tenantID, dueBefore, dueBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list members due for value drop: %w", err)
	}
	return members, nil
}
