package vllm

import (
	"github.com/kiranshivaraju/inboxlens/internal/ai/openai"
	"github.com/kiranshivaraju/inboxlens/internal/config"
)

// NewProvider returns a provider for a vLLM server's OpenAI-compatible API.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model)
}
