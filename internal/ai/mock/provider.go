package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/inboxlens/internal/ai"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	ClassifyFunc func(ctx context.Context, req models.ClassifyRequest) (models.Classification, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Classify(ctx context.Context, req models.ClassifyRequest) (models.Classification, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Text)
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return models.Classification{}, nil
}

// Calls returns the texts passed to Classify so far.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		ClassifyFunc: func(_ context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			return models.Classification{
				Category:       "support",
				Sentiment:      "neutral",
				SentimentScore: 0.5,
				Confidence:     0.85,
				Severity:       "medium",
				Entities:       []string{"ACME"},
				KeyPhrases:     []string{"mock phrase"},
				Summary:        "Mock classification for testing",
				Provider:       "mock",
				Model:          "mock-v1",
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		ClassifyFunc: func(_ context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			return models.Classification{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		ClassifyFunc: func(ctx context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			<-ctx.Done()
			return models.Classification{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
