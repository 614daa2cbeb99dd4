package domain

import "time"

const (
	AuditDraftCreated       = "draft_created"
	AuditAutosendEnqueued   = "autosend_enqueued"
	AuditOutboxReady        = "outbox_ready"
	AuditOutboxBlocked      = "outbox_blocked"
	AuditOutboxSent         = "outbox_sent"
	AuditOutboxError        = "outbox_error"
	AuditOutboxRequeued     = "outbox_requeued"
	AuditOutboxMarkedSent   = "outbox_marked_sent"
	AuditOutboxOverridden   = "outbox_block_overridden"
	AuditConversationClosed = "conversation_closed"
)

const (
	ActorForcedWeekly = "system:forced_weekly"
	ActorTrigger      = "system:trigger"
	ActorAutosend     = "system:autosend"
	ActorEvaluator    = "system:evaluator"
	ActorDispatcher   = "system:dispatcher"
)

type AuditEntry struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenantId"`
	Type      string         `db:"type" json:"type"`
	Actor     string         `db:"actor" json:"actor"`
	MemberID  *string        `db:"member_id" json:"memberId,omitempty"`
	Details   map[string]any `db:"-" json:"details"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}
