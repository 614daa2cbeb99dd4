package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/slack-go/slack/slackevents"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

const identityCacheTTL = 10 * time.Minute

type eventRepository interface {
	ListUnprocessed(ctx context.Context, tenantID string, limit int) ([]domain.InboundEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time, processingError *string) error
}

type conversationStore interface {
	FindByChannel(ctx context.Context, tenantID, channelID string) (*domain.SlackDmThread, error)
	FindIdentity(ctx context.Context, tenantID, slackUserID string) (*domain.SlackIdentity, error)
	Upsert(ctx context.Context, u domain.ThreadUpdate) error
}

// IngestionService folds stored Slack events into DM thread state.
type IngestionService struct {
	tenants    tenantRepository
	events     eventRepository
	threads    conversationStore
	identities *ttlcache.Cache[string, *domain.SlackIdentity]
	batchSize  int
	now        func() time.Time
}

func NewIngestionService(
	tenants tenantRepository,
	events eventRepository,
	threads conversationStore,
	batchSize int,
) *IngestionService {
	return &IngestionService{
		tenants:    tenants,
		events:     events,
		threads:    threads,
		identities: ttlcache.New(ttlcache.WithTTL[string, *domain.SlackIdentity](identityCacheTTL)),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// RunIngestion processes unprocessed events oldest first. Ingestion runs for
// every tenant regardless of its automation toggle.
func (s *IngestionService) RunIngestion(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error) {
	result := domain.JobResult{Job: domain.JobIngestion, DryRun: opts.DryRun}

	scopes, err := loadTenants(ctx, s.tenants, opts)
	if err != nil {
		return result, err
	}

	for _, sc := range scopes {
		result.Tenants++
		tenantID := sc.tenant.ID

		events, err := s.events.ListUnprocessed(ctx, tenantID, s.batchSize)
		if err != nil {
			logger.Errorf("[%s tenant=%s] Failed to list events: %v", domain.JobIngestion, tenantID, err)
			result.Errors++
			continue
		}

		for i := range events {
			result.Scanned++
			s.ingest(ctx, &events[i], opts.DryRun, &result)
		}
	}

	logger.Infof("[%s] tenants=%d scanned=%d applied=%d skipped=%d errors=%d",
		domain.JobIngestion, result.Tenants, result.Scanned, result.Created, result.Skipped, result.Errors)

	return result, nil
}

func (s *IngestionService) ingest(ctx context.Context, event *domain.InboundEvent, dryRun bool, result *domain.JobResult) {
	update, err := s.buildUpdate(ctx, event)
	if err != nil {
		logger.Warnf("[%s tenant=%s] Event %s failed: %v", domain.JobIngestion, event.TenantID, event.ID, err)
		result.Errors++
		if !dryRun {
			msg := err.Error()
			s.markProcessed(ctx, event, &msg)
		}
		return
	}

	if update == nil {
		result.Skipped++
		if !dryRun {
			s.markProcessed(ctx, event, nil)
		}
		return
	}

	if dryRun {
		result.Created++
		return
	}

	if err := s.threads.Upsert(ctx, *update); err != nil {
		logger.Errorf("[%s tenant=%s] Failed to upsert thread for event %s: %v",
			domain.JobIngestion, event.TenantID, event.ID, err)
		result.Errors++
		msg := err.Error()
		s.markProcessed(ctx, event, &msg)
		return
	}

	result.Created++
	s.markProcessed(ctx, event, nil)
}

func (s *IngestionService) markProcessed(ctx context.Context, event *domain.InboundEvent, processingError *string) {
	if err := s.events.MarkProcessed(ctx, event.ID, s.now().UTC(), processingError); err != nil {
		logger.Errorf("[%s tenant=%s] Failed to mark event %s processed: %v",
			domain.JobIngestion, event.TenantID, event.ID, err)
	}
}

// buildUpdate decodes one event. A nil update with a nil error means the
// event is not a DM message this worker applies.
func (s *IngestionService) buildUpdate(ctx context.Context, event *domain.InboundEvent) (*domain.ThreadUpdate, error) {
	parsed, err := slackevents.ParseEvent(json.RawMessage(event.Payload), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if parsed.Type != slackevents.CallbackEvent {
		return nil, nil
	}

	msg, ok := parsed.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || msg.ChannelType != "im" || msg.Channel == "" {
		return nil, nil
	}
	isBot := msg.SubType == "bot_message" || msg.BotID != ""
	if msg.SubType != "" && msg.SubType != "bot_message" {
		return nil, nil
	}

	memberID, err := s.resolveMember(ctx, event.TenantID, msg.Channel, msg.User, isBot)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		logger.Debugf("[%s tenant=%s] No member for channel %s, skipping event %s",
			domain.JobIngestion, event.TenantID, msg.Channel, event.ID)
		return nil, nil
	}

	at := event.ReceivedAt.UTC()
	if ts, ok := ParseSlackTimestamp(msg.TimeStamp); ok {
		at = ts
	}

	update := &domain.ThreadUpdate{
		TenantID:       event.TenantID,
		SlackChannelID: msg.Channel,
		MemberID:       memberID,
		LastMessageAt:  at,
	}

	switch {
	case isBot:
		update.LastCmMessageAt = &at
	default:
		identity, err := s.identity(ctx, event.TenantID, msg.User)
		if err != nil {
			return nil, err
		}
		switch {
		case identity == nil:
		case identity.IsOperator:
			update.LastCmMessageAt = &at
		case identity.MemberID != nil && *identity.MemberID == memberID:
			update.LastMemberMessageAt = &at
			update.MemberRepliedAt = &at
		}
	}

	return update, nil
}

// resolveMember prefers the mapped thread and falls back to the sender's
// identity for channels seen for the first time.
func (s *IngestionService) resolveMember(ctx context.Context, tenantID, channelID, userID string, isBot bool) (string, error) {
	thread, err := s.threads.FindByChannel(ctx, tenantID, channelID)
	if err != nil {
		return "", fmt.Errorf("failed to find thread: %w", err)
	}
	if thread != nil {
		return thread.MemberID, nil
	}

	if isBot || userID == "" {
		return "", nil
	}

	identity, err := s.identity(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	if identity == nil || identity.IsOperator || identity.MemberID == nil {
		return "", nil
	}
	return *identity.MemberID, nil
}

func (s *IngestionService) identity(ctx context.Context, tenantID, userID string) (*domain.SlackIdentity, error) {
	if userID == "" {
		return nil, nil
	}

	cacheKey := tenantID + ":" + userID
	if item := s.identities.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	identity, err := s.threads.FindIdentity(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	s.identities.Set(cacheKey, identity, ttlcache.DefaultTTL)
	return identity, nil
}

// ParseSlackTimestamp converts a Slack message ts ("1700000000.123456").
func ParseSlackTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}

	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	var micros int64
	if fracPart != "" {
		if len(fracPart) > 6 {
			fracPart = fracPart[:6]
		}
		fracPart += strings.Repeat("0", 6-len(fracPart))
		micros, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
	}

	return time.Unix(sec, micros*int64(time.Microsecond)).UTC(), true
}
