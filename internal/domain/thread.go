package domain

import "time"

// TimestampLayout is the fixed-width UTC layout of SlackDmThread.LastMessageAt.
// Fixed width keeps lexical and chronological order identical in SQL.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SlackDmThread is the conversation state of one DM channel.
type SlackDmThread struct {
	ID                   string     `db:"id" json:"id"`
	TenantID             string     `db:"tenant_id" json:"tenantId"`
	SlackChannelID       string     `db:"slack_channel_id" json:"slackChannelId"`
	MemberID             string     `db:"member_id" json:"memberId"`
	LastMessageAt        *string    `db:"last_message_at" json:"lastMessageAt,omitempty"`
	LastMemberMessageAt  *time.Time `db:"last_member_message_at" json:"lastMemberMessageAt,omitempty"`
	LastCmMessageAt      *time.Time `db:"last_cm_message_at" json:"lastCmMessageAt,omitempty"`
	MemberRepliedAt      *time.Time `db:"member_replied_at" json:"memberRepliedAt,omitempty"`
	ConversationClosedAt *time.Time `db:"conversation_closed_at" json:"conversationClosedAt,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// SlackIdentity maps a Slack user to a member or marks it as an operator.
type SlackIdentity struct {
	TenantID    string  `db:"tenant_id" json:"tenantId"`
	SlackUserID string  `db:"slack_user_id" json:"slackUserId"`
	MemberID    *string `db:"member_id" json:"memberId,omitempty"`
	IsOperator  bool    `db:"is_operator" json:"isOperator"`
}

// InboundEvent is a raw chat-platform event awaiting ingestion.
type InboundEvent struct {
	ID              string     `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenantId"`
	Payload         string     `db:"payload" json:"payload"`
	ReceivedAt      time.Time  `db:"received_at" json:"receivedAt"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processedAt,omitempty"`
	ProcessingError *string    `db:"processing_error" json:"processingError,omitempty"`
}

// ThreadUpdate is what one DM event implies for its thread. Nil fields are
// left untouched; set fields only ever move forward.
type ThreadUpdate struct {
	TenantID            string
	SlackChannelID      string
	MemberID            string
	LastMessageAt       time.Time
	LastMemberMessageAt *time.Time
	LastCmMessageAt     *time.Time
	MemberRepliedAt     *time.Time
}
