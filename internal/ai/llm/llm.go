// Package llm holds what every analyzer provider shares: the sentinel errors,
// the classification prompt, response parsing and the JSON-over-HTTP call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

var (
	ErrExternalService   = errors.New("analyzer external service error")
	ErrMalformedResponse = errors.New("analyzer returned malformed response")
	ErrInferenceTimeout  = errors.New("analyzer inference timeout")
)

// MaxOutputTokens bounds every provider completion.
const MaxOutputTokens = 1024

const SystemPrompt = `You classify inbound customer messages. Reply with a single JSON object and nothing else.`

// BuildPrompt wraps message text in the classification instructions.
func BuildPrompt(text string) string {
	return fmt.Sprintf(`Classify the message below.

Output ONLY a valid JSON object matching this exact schema:
{
  "category": "<short lowercase label, e.g. billing, support, sales, spam>",
  "sentiment": "<positive|neutral|negative>",
  "sentiment_score": <0.0 very negative .. 1.0 very positive>,
  "confidence": <0.0 .. 1.0>,
  "severity": "<low|medium|high|critical>",
  "entities": ["<people, companies, products mentioned>"],
  "key_phrases": ["<up to five short phrases>"],
  "summary": "<one sentence>"
}

Message:
%s`, text)
}

type rawClassification struct {
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore *float64 `json:"sentiment_score"`
	Confidence     *float64 `json:"confidence"`
	Severity       string   `json:"severity"`
	Entities       []string `json:"entities"`
	KeyPhrases     []string `json:"key_phrases"`
	Summary        string   `json:"summary"`
}

// ParseClassification extracts the JSON object from a model reply.
// Absent scores take their neutral defaults; every other field is left for the
// caller to normalize.
func ParseClassification(reply string) (models.Classification, error) {
	jsonStr, err := extractJSON(reply)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c := models.Classification{
		Category:       raw.Category,
		Sentiment:      raw.Sentiment,
		SentimentScore: 0.5,
		Severity:       raw.Severity,
		Entities:       raw.Entities,
		KeyPhrases:     raw.KeyPhrases,
		Summary:        raw.Summary,
	}
	if raw.SentimentScore != nil {
		c.SentimentScore = *raw.SentimentScore
	}
	if raw.Confidence != nil {
		c.Confidence = *raw.Confidence
	}
	return c, nil
}

// extractJSON finds the outermost JSON object in a string.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}

// ClassifyTransportError maps a failed remote call to ErrInferenceTimeout when
// the context ran out, and to ErrExternalService otherwise.
func ClassifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrExternalService, err)
}
