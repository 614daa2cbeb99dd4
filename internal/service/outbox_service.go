package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/internal/gate"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

const dispatchFailedReason = "Dispatch failed"

type outboxRepository interface {
	GetByID(ctx context.Context, id string) (*domain.OutboundMessage, error)
	PromoteDraft(ctx context.Context, draftID string, msg *domain.OutboundMessage) (*domain.OutboundMessage, bool, error)

	ListByStatuses(ctx context.Context, tenantID string, statuses []domain.OutboundStatus, limit int) ([]domain.OutboundMessage, error)
	ListDue(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboundMessage, error)

	MarkReady(ctx context.Context, id string, now time.Time) (bool, error)
	MarkBlocked(ctx context.Context, id, reason string, now time.Time) (bool, error)
	MarkError(ctx context.Context, id, reason string, now time.Time) (bool, error)
	Dispatch(ctx context.Context, p domain.DispatchParams) error

	Requeue(ctx context.Context, id string, now time.Time) (bool, error)
	MarkSentManually(ctx context.Context, id, externalID string, now time.Time) (bool, error)
	OverrideBlock(ctx context.Context, id string, now time.Time) (bool, error)

	GetAll(ctx context.Context, status *domain.OutboundStatus, page, pageSize int) ([]domain.OutboundMessage, int64, error)
	GetStats(ctx context.Context) (domain.OutboxStats, error)
}

type candidateRepository interface {
	ListAutosendCandidates(ctx context.Context, tenantID string, limit int) ([]domain.MessageDraft, error)
}

type threadRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SlackDmThread, error)
	FindByMember(ctx context.Context, tenantID, memberID string) (*domain.SlackDmThread, error)
	Close(ctx context.Context, id string, at time.Time) error
}

type sentMessageCache interface {
	CacheSentMessage(ctx context.Context, outboundID, externalID string, sentAt time.Time) error
	GetAllCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error)
}

// OutboxConfig holds the take-limits and the gate cooldown.
type OutboxConfig struct {
	AutosendBatchSize   int
	EvaluatorBatchSize  int
	DispatcherBatchSize int
	Cooldown            time.Duration
}

// OutboxService owns the outbound message lifecycle: enqueue, the autosend
// bridge, the evaluator and dispatcher jobs, and the operator actions.
type OutboxService struct {
	tenants    tenantRepository
	members    memberRepository
	candidates candidateRepository
	threads    threadRepository
	repo       outboxRepository
	cache      sentMessageCache
	audit      *AuditRecorder
	config     OutboxConfig
	now        func() time.Time
}

func NewOutboxService(
	tenants tenantRepository,
	members memberRepository,
	candidates candidateRepository,
	threads threadRepository,
	repo outboxRepository,
	cache sentMessageCache,
	audit *AuditRecorder,
	config OutboxConfig,
) *OutboxService {
	return &OutboxService{
		tenants:    tenants,
		members:    members,
		candidates: candidates,
		threads:    threads,
		repo:       repo,
		cache:      cache,
		audit:      audit,
		config:     config,
		now:        time.Now,
	}
}

func (s *OutboxService) policy(settings domain.AutomationSettings) gate.Policy {
	return gate.Policy{Cooldown: s.config.Cooldown, RespectContactState: settings.RespectContactState}
}

func newOutboundMessage(draft *domain.MessageDraft, now time.Time) *domain.OutboundMessage {
	return &domain.OutboundMessage{
		ID:        uuid.NewString(),
		TenantID:  draft.TenantID,
		DraftID:   draft.ID,
		MemberID:  draft.MemberID,
		Content:   draft.Content,
		Status:    domain.OutboundQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Enqueue promotes draft and creates its queued outbound message. Enqueueing
// the same draft twice returns the existing message with created=false. A
// draft that left pending without a message yields a nil message.
func (s *OutboxService) Enqueue(ctx context.Context, draft *domain.MessageDraft) (*domain.OutboundMessage, bool, error) {
	msg, created, err := s.repo.PromoteDraft(ctx, draft.ID, newOutboundMessage(draft, s.now().UTC()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue draft %s: %w", draft.ID, err)
	}
	if created {
		logger.Debugf("Enqueued outbound message %s for draft %s", msg.ID, draft.ID)
	}
	return msg, created, nil
}

// RunAutosend moves eligible drafts that currently pass the gate into the
// outbox. Drafts that fail the gate stay pending, and so does every draft
// after the first one promoted for the same member in a pass.
func (s *OutboxService) RunAutosend(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobAutosend, DryRun: opts.DryRun}

	scopes, err := enabledTenants(ctx, s.tenants, opts, domain.JobAutosend)
	if err != nil {
		return result, err
	}

	for _, sc := range scopes {
		result.Tenants++
		tenantID := sc.tenant.ID

		drafts, err := s.candidates.ListAutosendCandidates(ctx, tenantID, s.config.AutosendBatchSize)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to list candidates: %v", domain.JobAutosend, tenantID, err)
			result.Errors++
			continue
		}

		promoted := make(map[string]bool)
		for i := range drafts {
			draft := &drafts[i]
			result.Scanned++

			if !gate.IsAutosendCandidate(draft) {
				result.Skipped++
				continue
			}

			decision, err := s.evaluate(ctx, tenantID, draft.MemberID, sc.settings)
			if err != nil {
				logger.Errorf("[%s tenant=%s] Failed to evaluate draft %s: %v", domain.JobAutosend, tenantID, draft.ID, err)
				result.Errors++
				continue
			}
			if decision.OK && promoted[draft.MemberID] {
				decision = gate.Decision{OK: false, Reason: gate.ReasonCooldownNotMet}
			}
			if !decision.OK {
				logger.Debugf("[%s tenant=%s] Draft %s held: %s", domain.JobAutosend, tenantID, draft.ID, decision.Reason)
				result.Blocked++
				continue
			}

			if opts.DryRun {
				promoted[draft.MemberID] = true
				result.Created++
				continue
			}

			msg, created, err := s.Enqueue(ctx, draft)
			if err != nil {
				logger.Errorf("[%s tenant=%s] %v", domain.JobAutosend, tenantID, err)
				result.Errors++
				continue
			}
			if !created {
				result.Skipped++
				continue
			}

			promoted[draft.MemberID] = true
			result.Created++
			s.audit.Record(ctx, tenantID, domain.AuditAutosendEnqueued, domain.ActorAutosend, draft.MemberID, map[string]any{
				"draftId":           draft.ID,
				"outboundMessageId": msg.ID,
			})
		}
	}

	logger.Infof("[%s] tenants=%d scanned=%d enqueued=%d blocked=%d skipped=%d errors=%d",
		domain.JobAutosend, result.Tenants, result.Scanned, result.Created, result.Blocked, result.Skipped, result.Errors)

	return result, nil
}

// RunEvaluator re-runs the gate over queued and blocked messages. A member
// gets at most one ready message at a time: once a member has one, the rest
// of that member's messages are blocked on the cooldown.
func (s *OutboxService) RunEvaluator(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobEvaluator, DryRun: opts.DryRun}

	scopes, err := enabledTenants(ctx, s.tenants, opts, domain.JobEvaluator)
	if err != nil {
		return result, err
	}

	statuses := []domain.OutboundStatus{domain.OutboundQueued, domain.OutboundBlocked}
	for _, sc := range scopes {
		result.Tenants++
		tenantID := sc.tenant.ID

		messages, err := s.repo.ListByStatuses(ctx, tenantID, statuses, s.config.EvaluatorBatchSize)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to list messages: %v", domain.JobEvaluator, tenantID, err)
			result.Errors++
			continue
		}

		ready, err := s.repo.ListByStatuses(ctx, tenantID, []domain.OutboundStatus{domain.OutboundReady}, s.config.EvaluatorBatchSize)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to list ready messages: %v", domain.JobEvaluator, tenantID, err)
			result.Errors++
			continue
		}
		claimed := make(map[string]bool, len(ready))
		for _, m := range ready {
			claimed[m.MemberID] = true
		}

		for i := range messages {
			result.Scanned++
			s.evaluateMessage(ctx, &messages[i], sc.settings, claimed, opts.DryRun, &result)
		}
	}

	logger.Infof("[%s] tenants=%d scanned=%d ready=%d blocked=%d skipped=%d errors=%d",
		domain.JobEvaluator, result.Tenants, result.Scanned, result.Ready, result.Blocked, result.Skipped, result.Errors)

	return result, nil
}

func (s *OutboxService) evaluateMessage(
	ctx context.Context,
	msg *domain.OutboundMessage,
	settings domain.AutomationSettings,
	claimed map[string]bool,
	dryRun bool,
	result *domain.JobResult,
) {
	if msg.Status.IsTerminal() {
		result.Skipped++
		return
	}

	decision, err := s.evaluate(ctx, msg.TenantID, msg.MemberID, settings)
	if err != nil {
		logger.Errorf("[%s tenant=%s] Failed to evaluate message %s: %v", domain.JobEvaluator, msg.TenantID, msg.ID, err)
		result.Errors++
		return
	}
	if decision.OK && claimed[msg.MemberID] {
		decision = gate.Decision{OK: false, Reason: gate.ReasonCooldownNotMet}
	}

	if dryRun {
		if decision.OK {
			claimed[msg.MemberID] = true
			result.Ready++
		} else {
			result.Blocked++
		}
		return
	}

	now := s.now().UTC()

	if decision.OK {
		changed, err := s.repo.MarkReady(ctx, msg.ID, now)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to mark message %s ready: %v", domain.JobEvaluator, msg.TenantID, msg.ID, err)
			result.Errors++
			return
		}
		if !changed {
			result.Skipped++
			return
		}

		claimed[msg.MemberID] = true
		result.Ready++
		s.audit.Record(ctx, msg.TenantID, domain.AuditOutboxReady, domain.ActorEvaluator, msg.MemberID, map[string]any{
			"outboundMessageId": msg.ID,
			"previousStatus":    msg.Status,
		})
		return
	}

	changed, err := s.repo.MarkBlocked(ctx, msg.ID, decision.Reason, now)
	if err != nil {
		logger.Errorf("[%s tenant=%s] Failed to mark message %s blocked: %v", domain.JobEvaluator, msg.TenantID, msg.ID, err)
		result.Errors++
		return
	}
	if !changed {
		result.Skipped++
		return
	}

	result.Blocked++
	if msg.Status != domain.OutboundBlocked || msg.Error == nil || *msg.Error != decision.Reason {
		s.audit.Record(ctx, msg.TenantID, domain.AuditOutboxBlocked, domain.ActorEvaluator, msg.MemberID, map[string]any{
			"outboundMessageId": msg.ID,
			"reason":            decision.Reason,
		})
	}
}

// evaluate loads the member and the member's thread and runs the gate.
func (s *OutboxService) evaluate(
	ctx context.Context,
	tenantID, memberID string,
	settings domain.AutomationSettings,
) (gate.Decision, error) {
	member, err := s.members.GetByID(ctx, tenantID, memberID)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("failed to load member: %w", err)
	}

	thread, err := s.threads.FindByMember(ctx, tenantID, memberID)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("failed to load thread: %w", err)
	}

	return gate.Evaluate(member, thread, s.now().UTC(), s.policy(settings)), nil
}

// RunDispatcher sends ready messages whose schedule has come, at most one
// per member per pass. Later ones for the same member stay ready.
func (s *OutboxService) RunDispatcher(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobDispatcher, DryRun: opts.DryRun}

	scopes, err := enabledTenants(ctx, s.tenants, opts, domain.JobDispatcher)
	if err != nil {
		return result, err
	}

	for _, sc := range scopes {
		result.Tenants++
		tenantID := sc.tenant.ID

		due, err := s.repo.ListDue(ctx, tenantID, s.now().UTC(), s.config.DispatcherBatchSize)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to list due messages: %v", domain.JobDispatcher, tenantID, err)
			result.Errors++
			continue
		}

		sent := make(map[string]bool)
		for i := range due {
			msg := &due[i]
			result.Scanned++
			if sent[msg.MemberID] {
				logger.Debugf("[%s tenant=%s] Message %s held: member %s already messaged this run",
					domain.JobDispatcher, tenantID, msg.ID, msg.MemberID)
				result.Skipped++
				continue
			}
			if opts.DryRun {
				sent[msg.MemberID] = true
				result.Sent++
				continue
			}
			if s.dispatch(ctx, msg, &result) {
				sent[msg.MemberID] = true
			}
		}
	}

	logger.Infof("[%s] tenants=%d scanned=%d sent=%d skipped=%d errors=%d",
		domain.JobDispatcher, result.Tenants, result.Scanned, result.Sent, result.Skipped, result.Errors)

	return result, nil
}

func (s *OutboxService) dispatch(ctx context.Context, msg *domain.OutboundMessage, result *domain.JobResult) bool {
	now := s.now().UTC()
	externalID := "out_" + uuid.NewString()

	err := s.repo.Dispatch(ctx, domain.DispatchParams{
		Message:    *msg,
		ExternalID: externalID,
		Now:        now,
		Interaction: domain.Interaction{
			ID:                uuid.NewString(),
			TenantID:          msg.TenantID,
			MemberID:          msg.MemberID,
			Type:              domain.InteractionTypeAutosendDM,
			OutboundMessageID: msg.ID,
			Content:           msg.Content,
			CreatedAt:         now,
		},
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.Debugf("[%s tenant=%s] Message %s is no longer ready", domain.JobDispatcher, msg.TenantID, msg.ID)
		result.Skipped++
		return false
	}
	if err != nil {
		logger.Errorf("[%s tenant=%s] Dispatch of message %s failed: %v", domain.JobDispatcher, msg.TenantID, msg.ID, err)
		result.Errors++

		// Outside the failed transaction. When this fails too the row stays
		// ready and is picked up again next run.
		if _, markErr := s.repo.MarkError(ctx, msg.ID, dispatchFailedReason, s.now().UTC()); markErr != nil {
			logger.Errorf("[%s tenant=%s] Failed to mark message %s as error: %v",
				domain.JobDispatcher, msg.TenantID, msg.ID, markErr)
			return false
		}
		s.audit.Record(ctx, msg.TenantID, domain.AuditOutboxError, domain.ActorDispatcher, msg.MemberID, map[string]any{
			"outboundMessageId": msg.ID,
			"reason":            dispatchFailedReason,
		})
		return false
	}

	result.Sent++

	if s.cache != nil {
		if err := s.cache.CacheSentMessage(ctx, msg.ID, externalID, now); err != nil {
			logger.Warnf("Failed to cache outbound message %s: %v", msg.ID, err)
		}
	}

	s.audit.Record(ctx, msg.TenantID, domain.AuditOutboxSent, domain.ActorDispatcher, msg.MemberID, map[string]any{
		"outboundMessageId": msg.ID,
		"externalId":        externalID,
	})

	logger.Infof("Dispatched outbound message %s (externalId: %s)", msg.ID, externalID)
	return true
}

// Requeue sends an errored or blocked message back through the evaluator.
func (s *OutboxService) Requeue(ctx context.Context, id, actor string) (*domain.OutboundMessage, error) {
	return s.operatorAction(ctx, id, actor, domain.AuditOutboxRequeued, nil,
		func(now time.Time) (bool, error) { return s.repo.Requeue(ctx, id, now) })
}

// MarkSent records a message an operator sent by hand.
func (s *OutboxService) MarkSent(ctx context.Context, id, actor string) (*domain.OutboundMessage, error) {
	externalID := "manual_" + uuid.NewString()
	return s.operatorAction(ctx, id, actor, domain.AuditOutboxMarkedSent, map[string]any{"externalId": externalID},
		func(now time.Time) (bool, error) { return s.repo.MarkSentManually(ctx, id, externalID, now) })
}

// OverrideBlock releases a blocked message to the dispatcher despite the gate.
func (s *OutboxService) OverrideBlock(ctx context.Context, id, actor, note string) (*domain.OutboundMessage, error) {
	return s.operatorAction(ctx, id, actor, domain.AuditOutboxOverridden, map[string]any{"note": note},
		func(now time.Time) (bool, error) { return s.repo.OverrideBlock(ctx, id, now) })
}

func (s *OutboxService) operatorAction(
	ctx context.Context,
	id, actor, auditType string,
	details map[string]any,
	apply func(now time.Time) (bool, error),
) (*domain.OutboundMessage, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}

	changed, err := apply(s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("message %s is %s: %w", id, msg.Status, domain.ErrInvalidTransition)
	}

	if details == nil {
		details = map[string]any{}
	}
	details["outboundMessageId"] = id
	details["previousStatus"] = msg.Status
	s.audit.Record(ctx, msg.TenantID, auditType, actor, msg.MemberID, details)

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}
	return updated, nil
}

// CloseConversation marks a DM thread closed by an operator.
func (s *OutboxService) CloseConversation(ctx context.Context, threadID, actor string) (*domain.SlackDmThread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, domain.ErrNotFound
	}

	if err := s.threads.Close(ctx, threadID, s.now().UTC()); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, thread.TenantID, domain.AuditConversationClosed, actor, thread.MemberID, map[string]any{
		"threadId":       threadID,
		"slackChannelId": thread.SlackChannelID,
	})

	return s.threads.GetByID(ctx, threadID)
}

func (s *OutboxService) GetAllMessages(
	ctx context.Context,
	status *domain.OutboundStatus,
	page,
	pageSize int,
) ([]domain.OutboundMessage, int64, error) {
	return s.repo.GetAll(ctx, status, page, pageSize)
}

func (s *OutboxService) GetStats(ctx context.Context) (domain.OutboxStats, error) {
	return s.repo.GetStats(ctx)
}

func (s *OutboxService) GetCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return s.cache.GetAllCachedMessages(ctx)
}
