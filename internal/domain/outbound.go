package domain

import "time"

type OutboundStatus string

const (
	OutboundQueued  OutboundStatus = "queued"
	OutboundReady   OutboundStatus = "ready"
	OutboundBlocked OutboundStatus = "blocked"
	OutboundSent    OutboundStatus = "sent"
	OutboundError   OutboundStatus = "error"
)

// IsTerminal reports whether no job may move the message any further.
func (s OutboundStatus) IsTerminal() bool {
	return s == OutboundSent || s == OutboundError
}

// OutboundMessage is the outbox row for a draft selected for autosend.
// There is at most one per draft.
type OutboundMessage struct {
	ID           string         `db:"id" json:"id"`
	TenantID     string         `db:"tenant_id" json:"tenantId"`
	DraftID      string         `db:"draft_id" json:"draftId"`
	MemberID     string         `db:"member_id" json:"memberId"`
	Content      string         `db:"content" json:"content"`
	Status       OutboundStatus `db:"status" json:"status"`
	ScheduledFor *time.Time     `db:"scheduled_for" json:"scheduledFor,omitempty"`
	SentAt       *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
	ExternalID   *string        `db:"external_id" json:"externalId,omitempty"`
	Error        *string        `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

type OutboxStats struct {
	Queued  int64 `db:"queued" json:"queued"`
	Ready   int64 `db:"ready" json:"ready"`
	Blocked int64 `db:"blocked" json:"blocked"`
	Sent    int64 `db:"sent" json:"sent"`
	Error   int64 `db:"error" json:"error"`
}

// DispatchParams carries every side effect of a successful dispatch; they
// are applied in one transaction.
type DispatchParams struct {
	Message     OutboundMessage
	ExternalID  string
	Now         time.Time
	Interaction Interaction
}

type SentMessageCache struct {
	ExternalID string    `json:"externalId"`
	SentAt     time.Time `json:"sentAt"`
}
