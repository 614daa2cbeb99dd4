package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

func TestAuditRecorder_Record(t *testing.T) {
	s := newMemStore()
	rec := NewAuditRecorder(fakeAudit{s})

	rec.Record(context.Background(), "t1", domain.AuditOutboxSent, domain.ActorDispatcher, "m1", map[string]any{"externalId": "out_1"})
	rec.Record(context.Background(), "t1", domain.AuditConversationClosed, "operator:jane", "", nil)

	require.Len(t, s.audits, 2)
	assert.Equal(t, "m1", *s.audits[0].MemberID)
	assert.Equal(t, "out_1", s.audits[0].Details["externalId"])
	assert.Nil(t, s.audits[1].MemberID)
	assert.NotEmpty(t, s.audits[1].ID)
}

func TestAuditRecorder_SwallowsErrors(t *testing.T) {
	s := newMemStore()
	s.auditErr = errors.New("disk full")
	rec := NewAuditRecorder(fakeAudit{s})

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), "t1", domain.AuditOutboxSent, domain.ActorDispatcher, "m1", nil)
	})

	var nilRec *AuditRecorder
	assert.NotPanics(t, func() {
		nilRec.Record(context.Background(), "t1", domain.AuditOutboxSent, domain.ActorDispatcher, "m1", nil)
	})
}
