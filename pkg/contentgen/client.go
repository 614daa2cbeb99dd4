package contentgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

const promptTemplate = `You write short, friendly Slack direct messages from a community manager to a community member.

## Task
Write one message for the member below and judge whether it is safe to send without human review.

## Member
- name: %s
- action: %s

## Action meanings
- intro: suggest a member introduction that is waiting for them
- perk: point them to a perk recommended for them
- resource: share a useful resource from the community library
- check_in: a light personal check-in

## Answer format
Reply with JSON only:
{"content": "<message>", "autosendEligible": <true|false>, "blockedReasons": ["<reason>", ...], "sendRecommendation": "send" | "review" | "hold"}
`

// Client asks an OpenAI chat model for draft content and an autosend verdict.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient returns nil when no API key is configured.
func NewClient(cfg environments.OpenAIConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	c := openai.NewClient(options...)
	return &Client{client: &c, model: cfg.Model}
}

func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedContent, error) {
	prompt := fmt.Sprintf(promptTemplate, req.MemberName, req.ActionType)

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API returned no choices")
	}

	return ParseVerdict(response.Choices[0].Message.Content)
}

// ParseVerdict decodes the model answer. Markdown code fences around the
// JSON are tolerated. Anything but an explicit "send" recommendation is
// treated as not eligible.
func ParseVerdict(raw string) (*domain.GeneratedContent, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	var out domain.GeneratedContent
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &out); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}

	out.Content = strings.TrimSpace(out.Content)
	if out.Content == "" {
		return nil, fmt.Errorf("verdict has empty content")
	}

	switch out.SendRecommendation {
	case domain.RecommendSend, domain.RecommendReview, domain.RecommendHold:
	default:
		out.SendRecommendation = domain.RecommendReview
	}
	if out.SendRecommendation != domain.RecommendSend {
		out.AutosendEligible = false
	}
	if out.BlockedReasons == nil {
		out.BlockedReasons = []string{}
	}

	return &out, nil
}
