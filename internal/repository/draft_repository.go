package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

const draftColumns = `id, tenant_id, member_id, action_type, content, status, autosend_eligible, blocked_reasons,
	send_recommendation, impact_score, generated_from_opportunity_id, created_at, updated_at`

// DraftRepository handles message drafts and the read-only generator inputs
// (opportunities, intro suggestions, perk recommendations, resources).
type DraftRepository struct {
	db *sqlx.DB
}

func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

func (r *DraftRepository) Create(ctx context.Context, d *domain.MessageDraft) error {
	query := `
		INSERT INTO message_drafts (` + draftColumns + `)
		VALUES (:id, :tenant_id, :member_id, :action_type, :content, :status, :autosend_eligible, :blocked_reasons,
			:send_recommendation, :impact_score, :generated_from_opportunity_id, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("failed to create draft: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (r *DraftRepository) ExistsForOpportunity(ctx context.Context, opportunityID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM message_drafts WHERE generated_from_opportunity_id = ?)`
	if err := r.db.GetContext(ctx, &exists, query, opportunityID); err != nil {
		return false, fmt.Errorf("failed to check draft for opportunity: %w", err)
	}
	return exists, nil
}

// ListAutosendCandidates returns pending drafts the content collaborator
// marked eligible and recommended to send, oldest first.
func (r *DraftRepository) ListAutosendCandidates(ctx context.Context, tenantID string, limit int) ([]domain.MessageDraft, error) {
	query := `
		SELECT ` + draftColumns + `
		FROM message_drafts
		WHERE tenant_id = ? AND status = 'pending' AND autosend_eligible = TRUE AND send_recommendation = 'send'
		ORDER BY created_at ASC
		LIMIT ?
	`
	var drafts []domain.MessageDraft
	if err := r.db.SelectContext(ctx, &drafts, query, tenantID, limit); err != nil {
		return nil, fmt.Errorf("failed to list autosend candidates: %w", err)
	}
	return drafts, nil
}

// ListOpenOpportunities returns undismissed opportunities, most urgent first.
func (r *DraftRepository) ListOpenOpportunities(ctx context.Context, tenantID string, limit int) ([]domain.Opportunity, error) {
	query := `
		SELECT id, tenant_id, member_id, urgency, confidence, recommended_actions, dismissed_at, created_at
		FROM opportunities
		WHERE tenant_id = ? AND dismissed_at IS NULL
		ORDER BY urgency DESC, confidence DESC, created_at ASC
		LIMIT ?
	`
	var opportunities []domain.Opportunity
	if err := r.db.SelectContext(ctx, &opportunities, query, tenantID, limit); err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return opportunities, nil
}

func (r *DraftRepository) HasOpenIntroSuggestion(ctx context.Context, tenantID, memberID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM intro_suggestions WHERE tenant_id = ? AND member_id = ? AND dismissed_at IS NULL)`,
		tenantID, memberID)
}

func (r *DraftRepository) HasOpenPerkRecommendation(ctx context.Context, tenantID, memberID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM perk_recommendations
		WHERE tenant_id = ? AND member_id = ? AND delivered_at IS NULL AND dismissed_at IS NULL)`,
		tenantID, memberID)
}

func (r *DraftRepository) HasResources(ctx context.Context, tenantID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM resources WHERE tenant_id = ?)`, tenantID)
}

func (r *DraftRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to run exists query: %w", err)
	}
	return exists, nil
}
