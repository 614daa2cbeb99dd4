package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type DraftStatus string

const (
	DraftStatusPending   DraftStatus = "pending"
	DraftStatusSent      DraftStatus = "sent"
	DraftStatusDiscarded DraftStatus = "discarded"
	DraftStatusMerged    DraftStatus = "merged"
)

type SendRecommendation string

const (
	RecommendSend   SendRecommendation = "send"
	RecommendReview SendRecommendation = "review"
	RecommendHold   SendRecommendation = "hold"
)

const (
	ActionIntro    = "intro"
	ActionPerk     = "perk"
	ActionResource = "resource"
	ActionCheckIn  = "check_in"
)

const (
	ForcedWeeklyImpactScore = 60
	TriggeredImpactScore    = 70
)

// StringList is a JSON-encoded list column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

type MessageDraft struct {
	ID                         string             `db:"id" json:"id"`
	TenantID                   string             `db:"tenant_id" json:"tenantId"`
	MemberID                   string             `db:"member_id" json:"memberId"`
	ActionType                 string             `db:"action_type" json:"actionType"`
	Content                    string             `db:"content" json:"content"`
	Status                     DraftStatus        `db:"status" json:"status"`
	AutosendEligible           bool               `db:"autosend_eligible" json:"autosendEligible"`
	BlockedReasons             StringList         `db:"blocked_reasons" json:"blockedReasons"`
	SendRecommendation         SendRecommendation `db:"send_recommendation" json:"sendRecommendation"`
	ImpactScore                int                `db:"impact_score" json:"impactScore"`
	GeneratedFromOpportunityID *string            `db:"generated_from_opportunity_id" json:"generatedFromOpportunityId,omitempty"`
	CreatedAt                  time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt                  time.Time          `db:"updated_at" json:"updatedAt"`
}

// Opportunity is a retention signal that can trigger a draft.
type Opportunity struct {
	ID                 string     `db:"id" json:"id"`
	TenantID           string     `db:"tenant_id" json:"tenantId"`
	MemberID           string     `db:"member_id" json:"memberId"`
	Urgency            int        `db:"urgency" json:"urgency"`
	Confidence         float64    `db:"confidence" json:"confidence"`
	RecommendedActions StringList `db:"recommended_actions" json:"recommendedActions"`
	DismissedAt        *time.Time `db:"dismissed_at" json:"dismissedAt,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
}

// GeneratedContent is the content collaborator's answer for one draft.
type GeneratedContent struct {
	Content            string             `json:"content"`
	AutosendEligible   bool               `json:"autosendEligible"`
	BlockedReasons     []string           `json:"blockedReasons"`
	SendRecommendation SendRecommendation `json:"sendRecommendation"`
}

// GenerateRequest is what the content collaborator is asked to write.
type GenerateRequest struct {
	TenantID   string
	MemberID   string
	MemberName string
	ActionType string
}
