package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

//
// In-memory store shared by the fakes below. Guards mirror the SQL ones.
//

type memStore struct {
	mu sync.Mutex

	tenants       []domain.Tenant
	members       map[string]*domain.Member
	threads       map[string]*domain.SlackDmThread
	identities    map[string]*domain.SlackIdentity
	drafts        map[string]*domain.MessageDraft
	opportunities []domain.Opportunity
	intros        map[string]bool
	perks         map[string]bool
	resources     map[string]bool
	outbox        map[string]*domain.OutboundMessage
	outboxOrder   []string
	events        []*domain.InboundEvent
	interactions  []domain.Interaction
	audits        []*domain.AuditEntry

	dispatchErr     error
	markErrorErr    error
	auditErr        error
	identityLookups int
	seq             int
}

func newMemStore() *memStore {
	return &memStore{
		members:    map[string]*domain.Member{},
		threads:    map[string]*domain.SlackDmThread{},
		identities: map[string]*domain.SlackIdentity{},
		drafts:     map[string]*domain.MessageDraft{},
		intros:     map[string]bool{},
		perks:      map[string]bool{},
		resources:  map[string]bool{},
		outbox:     map[string]*domain.OutboundMessage{},
	}
}

func (s *memStore) addTenant(id, settings string) {
	s.tenants = append(s.tenants, domain.Tenant{ID: id, Name: id, AutomationSettings: settings})
}

func (s *memStore) addMember(m domain.Member) *domain.Member {
	if m.Status == "" {
		m.Status = domain.MemberStatusActive
	}
	if m.ContactState == "" {
		m.ContactState = domain.ContactStateOpen
	}
	s.seq++
	m.CreatedAt = time.Date(2024, 1, 1, 0, 0, s.seq, 0, time.UTC)
	s.members[m.ID] = &m
	return &m
}

func (s *memStore) addThread(t domain.SlackDmThread) *domain.SlackDmThread {
	s.threads[t.ID] = &t
	return &t
}

func (s *memStore) addOutbound(m domain.OutboundMessage) *domain.OutboundMessage {
	s.seq++
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Date(2024, 1, 1, 0, 0, s.seq, 0, time.UTC)
	}
	s.outbox[m.ID] = &m
	s.outboxOrder = append(s.outboxOrder, m.ID)
	return &m
}

func (s *memStore) draftsFor(memberID string) []*domain.MessageDraft {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.MessageDraft
	for _, d := range s.drafts {
		if d.MemberID == memberID {
			out = append(out, d)
		}
	}
	return out
}

func (s *memStore) outboundForDraft(draftID string) []*domain.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.OutboundMessage
	for _, id := range s.outboxOrder {
		if s.outbox[id].DraftID == draftID {
			out = append(out, s.outbox[id])
		}
	}
	return out
}

func (s *memStore) auditTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Type)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func maxTime(cur *time.Time, next *time.Time) *time.Time {
	if next == nil {
		return cur
	}
	if cur == nil || next.After(*cur) {
		v := *next
		return &v
	}
	return cur
}

//
// Tenants
//

type fakeTenants struct{ s *memStore }

func (f fakeTenants) List(ctx context.Context) ([]domain.Tenant, error) {
	return append([]domain.Tenant(nil), f.s.tenants...), nil
}

func (f fakeTenants) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	for _, t := range f.s.tenants {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

//
// Members
//

type fakeMembers struct{ s *memStore }

func (f fakeMembers) GetByID(ctx context.Context, tenantID, id string) (*domain.Member, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	m, ok := f.s.members[id]
	if !ok || m.TenantID != tenantID {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f fakeMembers) ListDueForValueDrop(ctx context.Context, tenantID string, dueBefore time.Time, limit int) ([]domain.Member, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.Member
	for _, m := range f.s.members {
		if m.TenantID != tenantID || m.Status != domain.MemberStatusActive || m.ContactState == domain.ContactStateMuted {
			continue
		}
		if m.LastValueDropAt != nil && !m.LastValueDropAt.Before(dueBefore) {
			continue
		}
		live := false
		for _, d := range f.s.drafts {
			if d.MemberID == m.ID && d.Status != domain.DraftStatusDiscarded && !d.CreatedAt.Before(dueBefore) {
				live = true
			}
		}
		if live {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

//
// Drafts and generator inputs
//

type fakeDrafts struct {
	s         *memStore
	createErr error
}

func (f *fakeDrafts) Create(ctx context.Context, d *domain.MessageDraft) error {
	if f.createErr != nil {
		return f.createErr
	}

	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if d.GeneratedFromOpportunityID != nil {
		for _, existing := range f.s.drafts {
			if existing.GeneratedFromOpportunityID != nil && *existing.GeneratedFromOpportunityID == *d.GeneratedFromOpportunityID {
				return fmt.Errorf("failed to create draft: %w", domain.ErrDuplicate)
			}
		}
	}
	cp := *d
	f.s.drafts[d.ID] = &cp
	return nil
}

func (f *fakeDrafts) ExistsForOpportunity(ctx context.Context, opportunityID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	for _, d := range f.s.drafts {
		if d.GeneratedFromOpportunityID != nil && *d.GeneratedFromOpportunityID == opportunityID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDrafts) ListAutosendCandidates(ctx context.Context, tenantID string, limit int) ([]domain.MessageDraft, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.MessageDraft
	for _, d := range f.s.drafts {
		if d.TenantID == tenantID && d.Status == domain.DraftStatusPending && d.AutosendEligible &&
			d.SendRecommendation == domain.RecommendSend {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDrafts) ListOpenOpportunities(ctx context.Context, tenantID string, limit int) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, o := range f.s.opportunities {
		if o.TenantID == tenantID && o.DismissedAt == nil {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Urgency != out[j].Urgency {
			return out[i].Urgency > out[j].Urgency
		}
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDrafts) HasOpenIntroSuggestion(ctx context.Context, tenantID, memberID string) (bool, error) {
	return f.s.intros[memberID], nil
}

func (f *fakeDrafts) HasOpenPerkRecommendation(ctx context.Context, tenantID, memberID string) (bool, error) {
	return f.s.perks[memberID], nil
}

func (f *fakeDrafts) HasResources(ctx context.Context, tenantID string) (bool, error) {
	return f.s.resources[tenantID], nil
}

//
// Threads and identities
//

type fakeThreads struct{ s *memStore }

func (f fakeThreads) GetByID(ctx context.Context, id string) (*domain.SlackDmThread, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	t, ok := f.s.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f fakeThreads) FindByChannel(ctx context.Context, tenantID, channelID string) (*domain.SlackDmThread, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	for _, t := range f.s.threads {
		if t.TenantID == tenantID && t.SlackChannelID == channelID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeThreads) FindByMember(ctx context.Context, tenantID, memberID string) (*domain.SlackDmThread, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var best *domain.SlackDmThread
	for _, t := range f.s.threads {
		if t.TenantID != tenantID || t.MemberID != memberID {
			continue
		}
		if best == nil || (t.LastMessageAt != nil && (best.LastMessageAt == nil || *t.LastMessageAt > *best.LastMessageAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f fakeThreads) Close(ctx context.Context, id string, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	t, ok := f.s.threads[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.ConversationClosedAt = &at
	return nil
}

func (f fakeThreads) FindIdentity(ctx context.Context, tenantID, slackUserID string) (*domain.SlackIdentity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	f.s.identityLookups++
	id, ok := f.s.identities[tenantID+":"+slackUserID]
	if !ok {
		return nil, nil
	}
	cp := *id
	return &cp, nil
}

func (f fakeThreads) Upsert(ctx context.Context, u domain.ThreadUpdate) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var t *domain.SlackDmThread
	for _, existing := range f.s.threads {
		if existing.TenantID == u.TenantID && existing.SlackChannelID == u.SlackChannelID {
			t = existing
		}
	}
	if t == nil {
		t = &domain.SlackDmThread{
			ID:             "thread-" + u.SlackChannelID,
			TenantID:       u.TenantID,
			SlackChannelID: u.SlackChannelID,
			MemberID:       u.MemberID,
		}
		f.s.threads[t.ID] = t
	}

	stamp := domain.FormatTimestamp(u.LastMessageAt)
	if t.LastMessageAt == nil || stamp > *t.LastMessageAt {
		t.LastMessageAt = &stamp
	}
	t.LastMemberMessageAt = maxTime(t.LastMemberMessageAt, u.LastMemberMessageAt)
	t.LastCmMessageAt = maxTime(t.LastCmMessageAt, u.LastCmMessageAt)
	t.MemberRepliedAt = maxTime(t.MemberRepliedAt, u.MemberRepliedAt)
	return nil
}

//
// Outbox
//

type fakeOutbox struct{ s *memStore }

func (f fakeOutbox) GetByID(ctx context.Context, id string) (*domain.OutboundMessage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	m, ok := f.s.outbox[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f fakeOutbox) PromoteDraft(ctx context.Context, draftID string, msg *domain.OutboundMessage) (*domain.OutboundMessage, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	existing := func() *domain.OutboundMessage {
		for _, id := range f.s.outboxOrder {
			if f.s.outbox[id].DraftID == draftID {
				cp := *f.s.outbox[id]
				return &cp
			}
		}
		return nil
	}

	d, ok := f.s.drafts[draftID]
	if !ok || d.Status != domain.DraftStatusPending {
		return existing(), false, nil
	}
	d.Status = domain.DraftStatusSent

	if m := existing(); m != nil {
		return m, false, nil
	}
	cp := *msg
	f.s.outbox[msg.ID] = &cp
	f.s.outboxOrder = append(f.s.outboxOrder, msg.ID)
	return msg, true, nil
}

func (f fakeOutbox) ListByStatuses(ctx context.Context, tenantID string, statuses []domain.OutboundStatus, limit int) ([]domain.OutboundMessage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.OutboundMessage
	for _, id := range f.s.outboxOrder {
		m := f.s.outbox[id]
		if m.TenantID != tenantID {
			continue
		}
		for _, st := range statuses {
			if m.Status == st {
				out = append(out, *m)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeOutbox) ListDue(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboundMessage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.OutboundMessage
	for _, id := range f.s.outboxOrder {
		m := f.s.outbox[id]
		if m.TenantID == tenantID && m.Status == domain.OutboundReady && (m.ScheduledFor == nil || !m.ScheduledFor.After(now)) {
			out = append(out, *m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeOutbox) transition(id string, from []domain.OutboundStatus, apply func(m *domain.OutboundMessage)) bool {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	m, ok := f.s.outbox[id]
	if !ok {
		return false
	}
	for _, st := range from {
		if m.Status == st {
			apply(m)
			return true
		}
	}
	return false
}

func (f fakeOutbox) MarkReady(ctx context.Context, id string, now time.Time) (bool, error) {
	return f.transition(id, []domain.OutboundStatus{domain.OutboundQueued, domain.OutboundBlocked}, func(m *domain.OutboundMessage) {
		m.Status, m.ScheduledFor, m.Error, m.UpdatedAt = domain.OutboundReady, &now, nil, now
	}), nil
}

func (f fakeOutbox) MarkBlocked(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	return f.transition(id, []domain.OutboundStatus{domain.OutboundQueued, domain.OutboundBlocked}, func(m *domain.OutboundMessage) {
		m.Status, m.Error, m.UpdatedAt = domain.OutboundBlocked, &reason, now
	}), nil
}

func (f fakeOutbox) MarkError(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	if f.s.markErrorErr != nil {
		return false, f.s.markErrorErr
	}
	return f.transition(id, []domain.OutboundStatus{domain.OutboundReady}, func(m *domain.OutboundMessage) {
		m.Status, m.Error, m.UpdatedAt = domain.OutboundError, &reason, now
	}), nil
}

func (f fakeOutbox) Requeue(ctx context.Context, id string, now time.Time) (bool, error) {
	return f.transition(id, []domain.OutboundStatus{domain.OutboundError, domain.OutboundBlocked}, func(m *domain.OutboundMessage) {
		m.Status, m.Error, m.ScheduledFor, m.UpdatedAt = domain.OutboundQueued, nil, nil, now
	}), nil
}

func (f fakeOutbox) MarkSentManually(ctx context.Context, id, externalID string, now time.Time) (bool, error) {
	from := []domain.OutboundStatus{domain.OutboundQueued, domain.OutboundReady, domain.OutboundBlocked, domain.OutboundError}
	return f.transition(id, from, func(m *domain.OutboundMessage) {
		m.Status, m.SentAt, m.ExternalID, m.Error, m.UpdatedAt = domain.OutboundSent, &now, &externalID, nil, now
	}), nil
}

func (f fakeOutbox) OverrideBlock(ctx context.Context, id string, now time.Time) (bool, error) {
	return f.transition(id, []domain.OutboundStatus{domain.OutboundBlocked}, func(m *domain.OutboundMessage) {
		m.Status, m.ScheduledFor, m.Error, m.UpdatedAt = domain.OutboundReady, &now, nil, now
	}), nil
}

func (f fakeOutbox) Dispatch(ctx context.Context, p domain.DispatchParams) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if f.s.dispatchErr != nil {
		return f.s.dispatchErr
	}

	m, ok := f.s.outbox[p.Message.ID]
	if !ok || m.Status != domain.OutboundReady {
		return domain.ErrInvalidTransition
	}
	m.Status, m.SentAt, m.ExternalID, m.Error, m.UpdatedAt = domain.OutboundSent, &p.Now, &p.ExternalID, nil, p.Now

	f.s.interactions = append(f.s.interactions, p.Interaction)

	if member, ok := f.s.members[m.MemberID]; ok {
		member.LastContactedAt = &p.Now
		member.LastValueDropAt = &p.Now
	}

	stamp := domain.FormatTimestamp(p.Now)
	for _, t := range f.s.threads {
		if t.TenantID == m.TenantID && t.MemberID == m.MemberID {
			if t.LastMessageAt == nil || stamp > *t.LastMessageAt {
				t.LastMessageAt = &stamp
			}
			t.LastCmMessageAt = maxTime(t.LastCmMessageAt, &p.Now)
		}
	}
	return nil
}

func (f fakeOutbox) GetAll(ctx context.Context, status *domain.OutboundStatus, page, pageSize int) ([]domain.OutboundMessage, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.OutboundMessage
	for _, id := range f.s.outboxOrder {
		m := f.s.outbox[id]
		if status == nil || m.Status == *status {
			out = append(out, *m)
		}
	}
	return out, int64(len(out)), nil
}

func (f fakeOutbox) GetStats(ctx context.Context) (domain.OutboxStats, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var st domain.OutboxStats
	for _, m := range f.s.outbox {
		switch m.Status {
		case domain.OutboundQueued:
			st.Queued++
		case domain.OutboundReady:
			st.Ready++
		case domain.OutboundBlocked:
			st.Blocked++
		case domain.OutboundSent:
			st.Sent++
		case domain.OutboundError:
			st.Error++
		}
	}
	return st, nil
}

//
// Events, audit, cache, content
//

type fakeEvents struct{ s *memStore }

func (f fakeEvents) ListUnprocessed(ctx context.Context, tenantID string, limit int) ([]domain.InboundEvent, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.InboundEvent
	for _, e := range f.s.events {
		if e.TenantID == tenantID && e.ProcessedAt == nil {
			out = append(out, *e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeEvents) MarkProcessed(ctx context.Context, id string, at time.Time, processingError *string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	for _, e := range f.s.events {
		if e.ID == id && e.ProcessedAt == nil {
			e.ProcessedAt = &at
			e.ProcessingError = processingError
		}
	}
	return nil
}

type fakeAudit struct{ s *memStore }

func (f fakeAudit) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if f.s.auditErr != nil {
		return f.s.auditErr
	}
	f.s.audits = append(f.s.audits, entry)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.SentMessageCache
}

func (c *fakeCache) CacheSentMessage(ctx context.Context, outboundID, externalID string, sentAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = map[string]*domain.SentMessageCache{}
	}
	c.entries[outboundID] = &domain.SentMessageCache{ExternalID: externalID, SentAt: sentAt}
	return nil
}

func (c *fakeCache) GetAllCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries, nil
}

type fakeContent struct {
	failFor map[string]bool
	calls   []domain.GenerateRequest
	verdict domain.GeneratedContent
}

func (c *fakeContent) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedContent, error) {
	c.calls = append(c.calls, req)
	if c.failFor[req.MemberID] {
		return nil, errors.New("content service unavailable")
	}

	out := c.verdict
	if out.Content == "" {
		out = domain.GeneratedContent{
			Content:            "Hi " + req.MemberName,
			AutosendEligible:   true,
			BlockedReasons:     []string{},
			SendRecommendation: domain.RecommendSend,
		}
	}
	return &out, nil
}

//
// Wiring helpers
//

func newTestOutboxService(s *memStore, now time.Time) (*OutboxService, *fakeCache) {
	cache := &fakeCache{}
	drafts := &fakeDrafts{s: s}
	svc := NewOutboxService(
		fakeTenants{s}, fakeMembers{s}, drafts, fakeThreads{s}, fakeOutbox{s}, cache,
		NewAuditRecorder(fakeAudit{s}),
		OutboxConfig{AutosendBatchSize: 200, EvaluatorBatchSize: 500, DispatcherBatchSize: 200, Cooldown: 24 * time.Hour},
	)
	svc.now = func() time.Time { return now }
	return svc, cache
}

func newTestDraftService(s *memStore, content *fakeContent, now time.Time) (*DraftService, *fakeDrafts) {
	drafts := &fakeDrafts{s: s}
	svc := NewDraftService(fakeTenants{s}, fakeMembers{s}, drafts, fakeThreads{s}, content, NewAuditRecorder(fakeAudit{s}), 200)
	svc.now = func() time.Time { return now }
	return svc, drafts
}

func newTestIngestionService(s *memStore, now time.Time) *IngestionService {
	svc := NewIngestionService(fakeTenants{s}, fakeEvents{s}, fakeThreads{s}, 500)
	svc.now = func() time.Time { return now }
	return svc
}
