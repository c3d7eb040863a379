package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/inboxlens/internal/ai/llm"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// NewProvider builds a provider. Extra request options (base URL, HTTP client)
// are appended after the API key. SDK retries are disabled: retry policy
// belongs to the batch engine.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	all := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Provider{
		client: anthropic.NewClient(all...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Classify(ctx context.Context, req models.ClassifyRequest) (models.Classification, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: llm.MaxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: llm.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.BuildPrompt(req.Text))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return models.Classification{}, fmt.Errorf("anthropic messages: %w: status %d", llm.ErrExternalService, apiErr.StatusCode)
		}
		return models.Classification{}, fmt.Errorf("anthropic messages: %w", llm.ClassifyTransportError(ctx, err))
	}

	if len(msg.Content) == 0 {
		return models.Classification{}, fmt.Errorf("anthropic: %w: empty content", llm.ErrMalformedResponse)
	}

	c, err := llm.ParseClassification(msg.Content[0].Text)
	if err != nil {
		return models.Classification{}, fmt.Errorf("anthropic: %w", err)
	}
	c.Provider = p.Name()
	c.Model = p.model
	return c, nil
}

var _ models.AIProvider = (*Provider)(nil)
