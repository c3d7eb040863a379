package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/inboxlens/internal/ai/llm"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// Provider implements models.AIProvider using Ollama.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

func (p *Provider) Classify(ctx context.Context, req models.ClassifyRequest) (models.Classification, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []message{
			{Role: "system", Content: llm.SystemPrompt},
			{Role: "user", Content: llm.BuildPrompt(req.Text)},
		},
		Format:  "json",
		Options: map[string]any{"num_predict": llm.MaxOutputTokens},
	}

	var resp chatResponse
	if err := llm.PostJSON(ctx, p.client, p.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return models.Classification{}, fmt.Errorf("ollama chat: %w", err)
	}

	c, err := llm.ParseClassification(resp.Message.Content)
	if err != nil {
		return models.Classification{}, fmt.Errorf("ollama: %w", err)
	}
	c.Provider = p.Name()
	c.Model = p.model
	return c, nil
}

var _ models.AIProvider = (*Provider)(nil)
