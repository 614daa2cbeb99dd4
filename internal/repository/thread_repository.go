package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

const threadColumns = `id, tenant_id, slack_channel_id, member_id, last_message_at, last_member_message_at,
	last_cm_message_at, member_replied_at, conversation_closed_at, created_at, updated_at`

// ThreadRepository handles the DM conversation state and Slack identities.
type ThreadRepository struct {
	db *sqlx.DB
}

func NewThreadRepository(db *sqlx.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*domain.SlackDmThread, error) {
	return r.getOne(ctx, `SELECT `+threadColumns+` FROM slack_dm_threads WHERE id = ?`, id)
}

func (r *ThreadRepository) FindByChannel(ctx context.Context, tenantID, channelID string) (*domain.SlackDmThread, error) {
	return r.getOne(ctx, `SELECT `+threadColumns+` FROM slack_dm_threads WHERE tenant_id = ? AND slack_channel_id = ?`,
		tenantID, channelID)
}

// FindByMember returns the member's most recently active thread.
func (r *ThreadRepository) FindByMember(ctx context.Context, tenantID, memberID string) (*domain.SlackDmThread, error) {
	return r.getOne(ctx, `
		SELECT `+threadColumns+`
		FROM slack_dm_threads
		WHERE tenant_id = ? AND member_id = ?
		ORDER BY last_message_at IS NULL, last_message_at DESC
		LIMIT 1`, tenantID, memberID)
}

func (r *ThreadRepository) getOne(ctx context.Context, query string, args ...any) (*domain.SlackDmThread, error) {
	var thread domain.SlackDmThread
	if err := r.db.GetContext(ctx, &thread, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

// Upsert applies one event to the (tenant, channel) row. Every timestamp
// column only moves forward and conversation_closed_at is never written, so
// replaying an event leaves the row unchanged.
func (r *ThreadRepository) Upsert(ctx context.Context, u domain.ThreadUpdate) error {
	query := `
		INSERT INTO slack_dm_threads (id, tenant_id, slack_channel_id, member_id, last_message_at,
			last_member_message_at, last_cm_message_at, member_replied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_message_at = GREATEST(COALESCE(last_message_at, VALUES(last_message_at)), VALUES(last_message_at)),
			last_member_message_at = GREATEST(
				COALESCE(last_member_message_at, VALUES(last_member_message_at)),
				COALESCE(VALUES(last_member_message_at), last_member_message_at)),
			last_cm_message_at = GREATEST(
				COALESCE(last_cm_message_at, VALUES(last_cm_message_at)),
				COALESCE(VALUES(last_cm_message_at), last_cm_message_at)),
			member_replied_at = GREATEST(
				COALESCE(member_replied_at, VALUES(member_replied_at)),
				COALESCE(VALUES(member_replied_at), member_replied_at))
	`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), u.TenantID, u.SlackChannelID, u.MemberID, domain.FormatTimestamp(u.LastMessageAt),
		u.LastMemberMessageAt, u.LastCmMessageAt, u.MemberRepliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}
	return nil
}

// Close records an explicit close of the conversation.
func (r *ThreadRepository) Close(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE slack_dm_threads SET conversation_closed_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ThreadRepository) FindIdentity(ctx context.Context, tenantID, slackUserID string) (*domain.SlackIdentity, error) {
	var identity domain.SlackIdentity
	query := `SELECT tenant_id, slack_user_id, member_id, is_operator FROM slack_identities WHERE tenant_id = ? AND slack_user_id = ?`
	if err := r.db.GetContext(ctx, &identity, query, tenantID, slackUserID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get slack identity: %w", err)
	}
	return &identity, nil
}
