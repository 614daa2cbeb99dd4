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

// recentActivityWindow is how far back a member message must be for
// requireRecentActivity to pass.
const recentActivityWindow = 30 * 24 * time.Hour

type memberRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Member, error)
	ListDueForValueDrop(ctx context.Context, tenantID string, dueBefore time.Time, limit int) ([]domain.Member, error)
}

type draftRepository interface {
	Create(ctx context.Context, d *domain.MessageDraft) error
	ExistsForOpportunity(ctx context.Context, opportunityID string) (bool, error)
	ListOpenOpportunities(ctx context.Context, tenantID string, limit int) ([]domain.Opportunity, error)
	HasOpenIntroSuggestion(ctx context.Context, tenantID, memberID string) (bool, error)
	HasOpenPerkRecommendation(ctx context.Context, tenantID, memberID string) (bool, error)
	HasResources(ctx context.Context, tenantID string) (bool, error)
}

type memberThreadFinder interface {
	FindByMember(ctx context.Context, tenantID, memberID string) (*domain.SlackDmThread, error)
}

type contentGenerator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedContent, error)
}

// DraftService creates message drafts, either on the per-member cadence or
// from retention opportunities.
type DraftService struct {
	tenants   tenantRepository
	members   memberRepository
	drafts    draftRepository
	threads   memberThreadFinder
	content   contentGenerator
	audit     *AuditRecorder
	batchSize int
	now       func() time.Time
}

func NewDraftService(
	tenants tenantRepository,
	members memberRepository,
	drafts draftRepository,
	threads memberThreadFinder,
	content contentGenerator,
	audit *AuditRecorder,
	batchSize int,
) *DraftService {
	return &DraftService{
		tenants:   tenants,
		members:   members,
		drafts:    drafts,
		threads:   threads,
		content:   content,
		audit:     audit,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// GenerateForcedWeekly creates one draft for every member due a value touch.
func (s *DraftService) GenerateForcedWeekly(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobForcedWeekly, DryRun: opts.DryRun}

	scopes, err := enabledTenants(ctx, s.tenants, opts, domain.JobForcedWeekly)
	if err != nil {
		return result, err
	}

	for _, sc := range scopes {
		result.Tenants++
		s.forcedWeeklyForTenant(ctx, sc, opts.DryRun, &result)
	}

	logger.Infof("[%s] tenants=%d scanned=%d created=%d skipped=%d errors=%d",
		domain.JobForcedWeekly, result.Tenants, result.Scanned, result.Created, result.Skipped, result.Errors)

	return result, nil
}

func (s *DraftService) forcedWeeklyForTenant(ctx context.Context, sc tenantScope, dryRun bool, result *domain.JobResult) {
	tenantID := sc.tenant.ID
	now := s.now().UTC()

	due, err := s.members.ListDueForValueDrop(ctx, tenantID, now.Add(-sc.settings.CadenceWindow()), s.batchSize)
	if err != nil {
		logger.Errorf("[%s tenant=%s] Failed to list due members: %v", domain.JobForcedWeekly, tenantID, err)
		result.Errors++
		return
	}

	created := 0
	for _, member := range due {
		if created >= sc.settings.MaxPerRun {
			break
		}
		result.Scanned++

		if domain.ForcedWeeklyImpactScore < sc.settings.MinImpactScore {
			result.Skipped++
			continue
		}

		ok, err := s.passesActivityCheck(ctx, sc.settings, tenantID, member.ID, now)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Activity check failed for member %s: %v",
				domain.JobForcedWeekly, tenantID, member.ID, err)
			result.Errors++
			continue
		}
		if !ok {
			result.Skipped++
			continue
		}

		action, err := s.pickAction(ctx, tenantID, member.ID)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to pick action for member %s: %v",
				domain.JobForcedWeekly, tenantID, member.ID, err)
			result.Errors++
			continue
		}

		draft, err := s.buildDraft(ctx, member, action, domain.ForcedWeeklyImpactScore, nil, now)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Content generation failed for member %s: %v",
				domain.JobForcedWeekly, tenantID, member.ID, err)
			result.Errors++
			continue
		}

		if dryRun {
			result.Created++
			created++
			continue
		}

		if err := s.drafts.Create(ctx, draft); err != nil {
			logger.Errorf("[%s tenant=%s] Failed to create draft for member %s: %v",
				domain.JobForcedWeekly, tenantID, member.ID, err)
			result.Errors++
			continue
		}

		result.Created++
		created++
		s.audit.Record(ctx, tenantID, domain.AuditDraftCreated, domain.ActorForcedWeekly, member.ID, map[string]any{
			"draftId":     draft.ID,
			"actionType":  draft.ActionType,
			"impactScore": draft.ImpactScore,
		})
	}
}

// GenerateTriggered creates one draft per open opportunity that has none yet.
func (s *DraftService) GenerateTriggered(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobTriggered, DryRun: opts.DryRun}

	scopes, err := enabledTenants(ctx, s.tenants, opts, domain.JobTriggered)
	if err != nil {
		return result, err
	}

	for _, sc := range scopes {
		result.Tenants++
		s.triggeredForTenant(ctx, sc, opts.DryRun, &result)
	}

	logger.Infof("[%s] tenants=%d scanned=%d created=%d skipped=%d errors=%d",
		domain.JobTriggered, result.Tenants, result.Scanned, result.Created, result.Skipped, result.Errors)

	return result, nil
}

func (s *DraftService) triggeredForTenant(ctx context.Context, sc tenantScope, dryRun bool, result *domain.JobResult) {
	tenantID := sc.tenant.ID
	now := s.now().UTC()

	opportunities, err := s.drafts.ListOpenOpportunities(ctx, tenantID, s.batchSize)
	if err != nil {
		logger.Errorf("[%s tenant=%s] Failed to list opportunities: %v", domain.JobTriggered, tenantID, err)
		result.Errors++
		return
	}

	created := 0
	for _, opp := range opportunities {
		if created >= sc.settings.MaxPerRun {
			break
		}
		result.Scanned++

		if domain.TriggeredImpactScore < sc.settings.MinImpactScore {
			result.Skipped++
			continue
		}

		exists, err := s.drafts.ExistsForOpportunity(ctx, opp.ID)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to check opportunity %s: %v", domain.JobTriggered, tenantID, opp.ID, err)
			result.Errors++
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		member, err := s.members.GetByID(ctx, tenantID, opp.MemberID)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to load member %s: %v", domain.JobTriggered, tenantID, opp.MemberID, err)
			result.Errors++
			continue
		}
		if member == nil {
			logger.Warnf("[%s tenant=%s] Opportunity %s references unknown member %s",
				domain.JobTriggered, tenantID, opp.ID, opp.MemberID)
			result.Skipped++
			continue
		}

		ok, err := s.passesActivityCheck(ctx, sc.settings, tenantID, member.ID, now)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Activity check failed for member %s: %v",
				domain.JobTriggered, tenantID, member.ID, err)
			result.Errors++
			continue
		}
		if !ok {
			result.Skipped++
			continue
		}

		action := domain.ActionCheckIn
		if len(opp.RecommendedActions) > 0 && opp.RecommendedActions[0] != "" {
			action = opp.RecommendedActions[0]
		}

		oppID := opp.ID
		draft, err := s.buildDraft(ctx, *member, action, domain.TriggeredImpactScore, &oppID, now)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Content generation failed for opportunity %s: %v",
				domain.JobTriggered, tenantID, opp.ID, err)
			result.Errors++
			continue
		}

		if dryRun {
			result.Created++
			created++
			continue
		}

		if err := s.drafts.Create(ctx, draft); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				// Another run got there first.
				result.Skipped++
				continue
			}
			logger.Errorf("[%s tenant=%s] Failed to create draft for opportunity %s: %v",
				domain.JobTriggered, tenantID, opp.ID, err)
			result.Errors++
			continue
		}

		result.Created++
		created++
		s.audit.Record(ctx, tenantID, domain.AuditDraftCreated, domain.ActorTrigger, member.ID, map[string]any{
			"draftId":       draft.ID,
			"actionType":    draft.ActionType,
			"impactScore":   draft.ImpactScore,
			"opportunityId": opp.ID,
		})
	}
}

// pickAction applies the fixed priority intro > perk > resource > check_in.
func (s *DraftService) pickAction(ctx context.Context, tenantID, memberID string) (string, error) {
	intro, err := s.drafts.HasOpenIntroSuggestion(ctx, tenantID, memberID)
	if err != nil {
		return "", err
	}
	if intro {
		return domain.ActionIntro, nil
	}

	perk, err := s.drafts.HasOpenPerkRecommendation(ctx, tenantID, memberID)
	if err != nil {
		return "", err
	}
	if perk {
		return domain.ActionPerk, nil
	}

	resources, err := s.drafts.HasResources(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if resources {
		return domain.ActionResource, nil
	}

	return domain.ActionCheckIn, nil
}

func (s *DraftService) passesActivityCheck(
	ctx context.Context,
	settings domain.AutomationSettings,
	tenantID, memberID string,
	now time.Time,
) (bool, error) {
	if !settings.RequireRecentActivity {
		return true, nil
	}

	thread, err := s.threads.FindByMember(ctx, tenantID, memberID)
	if err != nil {
		return false, err
	}
	if thread == nil || thread.LastMemberMessageAt == nil {
		return false, nil
	}
	return now.Sub(*thread.LastMemberMessageAt) <= recentActivityWindow, nil
}

func (s *DraftService) buildDraft(
	ctx context.Context,
	member domain.Member,
	action string,
	impactScore int,
	opportunityID *string,
	now time.Time,
) (*domain.MessageDraft, error) {
	generated, err := s.content.Generate(ctx, domain.GenerateRequest{
		TenantID:   member.TenantID,
		MemberID:   member.ID,
		MemberName: member.Name,
		ActionType: action,
	})
	if err != nil {
		return nil, err
	}
	if generated == nil {
		return nil, fmt.Errorf("content generator returned no content")
	}

	draft := &domain.MessageDraft{
		ID:                         uuid.NewString(),
		TenantID:                   member.TenantID,
		MemberID:                   member.ID,
		ActionType:                 action,
		Content:                    generated.Content,
		Status:                     domain.DraftStatusPending,
		AutosendEligible:           generated.AutosendEligible,
		BlockedReasons:             domain.StringList(generated.BlockedReasons),
		SendRecommendation:         generated.SendRecommendation,
		ImpactScore:                impactScore,
		GeneratedFromOpportunityID: opportunityID,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	if !gate.IsAutosendCandidate(draft) {
		logger.Debugf("Draft %s for member %s needs review (recommendation=%s eligible=%t)",
			draft.ID, member.ID, draft.SendRecommendation, draft.AutosendEligible)
	}

	return draft, nil
}
