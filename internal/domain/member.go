package domain

import "time"

type MemberStatus string

const (
	MemberStatusLead     MemberStatus = "lead"
	MemberStatusAccepted MemberStatus = "accepted"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusPaused   MemberStatus = "paused"
	MemberStatusChurned  MemberStatus = "churned"
)

type ContactState string

const (
	ContactStateOpen   ContactState = "open"
	ContactStateClosed ContactState = "closed"
	ContactStateMuted  ContactState = "muted"
)

type Tenant struct {
	ID                 string `db:"id" json:"id"`
	Name               string `db:"name" json:"name"`
	AutomationSettings string `db:"automation_settings" json:"-"`
}

// Member is a tenant's community member. A muted member must never receive
// an autosent message.
type Member struct {
	ID              string       `db:"id" json:"id"`
	TenantID        string       `db:"tenant_id" json:"tenantId"`
	Name            string       `db:"name" json:"name"`
	Status          MemberStatus `db:"status" json:"status"`
	ContactState    ContactState `db:"contact_state" json:"contactState"`
	LastContactedAt *time.Time   `db:"last_contacted_at" json:"lastContactedAt,omitempty"`
	LastValueDropAt *time.Time   `db:"last_value_drop_at" json:"lastValueDropAt,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// Interaction is the log row written for each dispatched message.
type Interaction struct {
	ID                string    `db:"id" json:"id"`
	TenantID          string    `db:"tenant_id" json:"tenantId"`
	MemberID          string    `db:"member_id" json:"memberId"`
	Type              string    `db:"type" json:"type"`
	OutboundMessageID string    `db:"outbound_message_id" json:"outboundMessageId"`
	Content           string    `db:"content" json:"content"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

const InteractionTypeAutosendDM = "autosend_dm"
