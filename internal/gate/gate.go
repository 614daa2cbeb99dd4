// Package gate decides whether an outbound message may be sent without
// human review. Evaluate is pure: the same member and thread snapshot at the
// same instant always yields the same Decision.
package gate

import (
	"time"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

const DefaultCooldown = 24 * time.Hour

const (
	ReasonMemberMuted        = "Member is muted"
	ReasonMemberClosed       = "Member contact state is closed"
	ReasonNoThread           = "No DM thread mapped"
	ReasonNoLastMessage      = "No last message timestamp"
	ReasonWaitingForReply    = "Waiting for member reply or close"
	ReasonInvalidLastMessage = "Invalid last message timestamp"
	ReasonCooldownNotMet     = "24h cooldown not met"
)

type Decision struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Policy tunes the gate per tenant.
type Policy struct {
	Cooldown            time.Duration
	RespectContactState bool
}

func DefaultPolicy() Policy {
	return Policy{Cooldown: DefaultCooldown, RespectContactState: true}
}

func blocked(reason string) Decision {
	return Decision{OK: false, Reason: reason}
}

// Evaluate runs the checks in order and surfaces the first failing reason.
func Evaluate(member *domain.Member, thread *domain.SlackDmThread, now time.Time, policy Policy) Decision {
	if member != nil {
		if member.ContactState == domain.ContactStateMuted {
			return blocked(ReasonMemberMuted)
		}
		if policy.RespectContactState && member.ContactState == domain.ContactStateClosed {
			return blocked(ReasonMemberClosed)
		}
	}

	if thread == nil {
		return blocked(ReasonNoThread)
	}
	if thread.LastMessageAt == nil || *thread.LastMessageAt == "" {
		return blocked(ReasonNoLastMessage)
	}
	if thread.MemberRepliedAt == nil && thread.ConversationClosedAt == nil {
		return blocked(ReasonWaitingForReply)
	}

	lastMessageAt, err := ParseTimestamp(*thread.LastMessageAt)
	if err != nil {
		return blocked(ReasonInvalidLastMessage)
	}

	cooldown := policy.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now.Sub(lastMessageAt) < cooldown {
		return blocked(ReasonCooldownNotMet)
	}

	return Decision{OK: true}
}

// ParseTimestamp accepts the thread layout and any RFC 3339 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(domain.TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// IsAutosendCandidate is the draft-level layer computed at generation time.
func IsAutosendCandidate(d *domain.MessageDraft) bool {
	return d.Status == domain.DraftStatusPending &&
		d.AutosendEligible &&
		d.SendRecommendation == domain.RecommendSend
}
