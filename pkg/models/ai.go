// Package models contains shared data models used across the InboxLens codebase.
package models

import "context"

// AIProvider is the core interface that all AI integrations must implement.
// Callers depend on this interface, never on a concrete provider.
type AIProvider interface {
	// Classify returns structured fields for one message.
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the model the provider is configured to call.
	Model() string
}

// ClassifyRequest is the input to a classification call.
type ClassifyRequest struct {
	Text string
}

// Classification is the structured output of an analyzer call.
type Classification struct {
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore float64  `json:"sentiment_score"`
	Confidence     float64  `json:"confidence"`
	Severity       string   `json:"severity"`
	Entities       []string `json:"entities"`
	KeyPhrases     []string `json:"key_phrases"`
	Summary        string   `json:"summary"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
}
