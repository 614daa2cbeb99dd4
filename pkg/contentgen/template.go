package contentgen

import (
	"context"
	"fmt"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

// Generator produces a draft's text and its send verdict.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedContent, error)
}

// ReasonTemplateReview is the blocked reason on template drafts that are
// not allowed to autosend.
const ReasonTemplateReview = "Template message needs review"

// New returns the model-backed client, or Template when no API key is set.
func New(cfg environments.OpenAIConfig) Generator {
	if client := NewClient(cfg); client != nil {
		return client
	}
	return Template{Autosend: cfg.TemplateAutosend}
}

var templates = map[string]string{
	domain.ActionIntro:    "Hi %s! There is someone in the community we think you should meet. Want an intro?",
	domain.ActionPerk:     "Hi %s! A member perk came up that looks like a good fit for you. Happy to share details.",
	domain.ActionResource: "Hi %s! We just pulled together a resource you might find useful. Want the link?",
	domain.ActionCheckIn:  "Hi %s! Just checking in. How are things going on your side?",
}

// Template writes fixed messages per action type. It is used when no model
// is configured. Its drafts go to review unless Autosend is set.
type Template struct {
	Autosend bool
}

func (t Template) Generate(_ context.Context, req domain.GenerateRequest) (*domain.GeneratedContent, error) {
	tmpl, ok := templates[req.ActionType]
	if !ok {
		tmpl = templates[domain.ActionCheckIn]
	}

	name := req.MemberName
	if name == "" {
		name = "there"
	}

	out := &domain.GeneratedContent{
		Content:            fmt.Sprintf(tmpl, name),
		AutosendEligible:   true,
		BlockedReasons:     []string{},
		SendRecommendation: domain.RecommendSend,
	}
	if !t.Autosend {
		out.AutosendEligible = false
		out.BlockedReasons = []string{ReasonTemplateReview}
		out.SendRecommendation = domain.RecommendReview
	}
	return out, nil
}
