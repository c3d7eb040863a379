package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/inboxlens/internal/analysis"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

const (
	maxCategoryBytes = 64
	maxSummaryBytes  = 2000
	maxListItems     = 20
	maxListItemBytes = 200
)

// Analyzer turns one message into a normalized Classification. It never
// retries; a failed call is reported to the caller as an item-local error.
type Analyzer struct {
	provider models.AIProvider
	timeout  time.Duration
}

// NewAnalyzer wraps provider with a per-call inference timeout.
func NewAnalyzer(provider models.AIProvider, timeout time.Duration) *Analyzer {
	return &Analyzer{provider: provider, timeout: timeout}
}

func (a *Analyzer) Provider() string { return a.provider.Name() }
func (a *Analyzer) Model() string    { return a.provider.Model() }

// Analyze classifies the subject and content of one message.
func (a *Analyzer) Analyze(ctx context.Context, subject, content string) (models.Classification, error) {
	text := analysis.PrepareText(subject, content)
	if text == "" {
		return models.Classification{}, ErrEmptyInput
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	c, err := a.provider.Classify(callCtx, models.ClassifyRequest{Text: text})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
			return models.Classification{}, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return models.Classification{}, err
	}

	c = Normalize(c)
	if c.Provider == "" {
		c.Provider = a.provider.Name()
	}
	if c.Model == "" {
		c.Model = a.provider.Model()
	}
	return c, nil
}

// Normalize applies defaults and bounds so that no empty or out-of-range
// field reaches storage.
func Normalize(c models.Classification) models.Classification {
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	if c.Category == "" {
		c.Category = "uncategorized"
	}
	c.Category = analysis.TruncateString(c.Category, maxCategoryBytes)

	c.Sentiment = analysis.NormalizeSentiment(c.Sentiment)
	c.SentimentScore = clamp01(c.SentimentScore, 0.5)
	c.Confidence = clamp01(c.Confidence, 0)
	c.Severity = analysis.NormalizeSeverity(c.Severity)
	c.Entities = cleanList(c.Entities)
	c.KeyPhrases = cleanList(c.KeyPhrases)
	c.Summary = analysis.TruncateString(strings.TrimSpace(c.Summary), maxSummaryBytes)
	return c
}

// clamp01 bounds v to [0, 1]; NaN becomes fallback.
func clamp01(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cleanList drops blanks and duplicates, caps the list and never returns nil.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = analysis.TruncateString(strings.TrimSpace(s), maxListItemBytes)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}
