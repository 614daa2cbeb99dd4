package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

type auditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
}

// AuditRecorder appends audit entries. It never fails its caller: insert
// errors are logged and dropped.
type AuditRecorder struct {
	repo auditRepository
	now  func() time.Time
}

func NewAuditRecorder(repo auditRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo, now: time.Now}
}

func (a *AuditRecorder) Record(
	ctx context.Context,
	tenantID, entryType, actor, memberID string,
	details map[string]any,
) {
	if a == nil || a.repo == nil {
		return
	}

	entry := &domain.AuditEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Type:      entryType,
		Actor:     actor,
		Details:   details,
		CreatedAt: a.now().UTC(),
	}
	if memberID != "" {
		entry.MemberID = &memberID
	}

	if err := a.repo.Insert(ctx, entry); err != nil {
		logger.Warnf("Failed to record audit entry %s for tenant %s: %v", entryType, tenantID, err)
	}
}
