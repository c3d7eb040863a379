package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/inboxlens/internal/ai/llm"
	"github.com/kiranshivaraju/inboxlens/internal/ai/openai"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestClassify_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(completion(`{"category":"billing","sentiment":"negative","sentiment_score":0.2,"confidence":0.9,"severity":"high","summary":"double charge"}`))
	}))
	defer srv.Close()

	p := openai.NewProvider(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/"})
	c, err := p.Classify(context.Background(), models.ClassifyRequest{Text: "charged twice"})
	require.NoError(t, err)

	assert.Equal(t, "billing", c.Category)
	assert.Equal(t, "openai", c.Provider)
	assert.Equal(t, "gpt-4o-mini", c.Model)
	assert.InDelta(t, 0.9, c.Confidence, 0.0001)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].(map[string]any)["content"], "charged twice")
}

func TestClassify_CompatibleWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(completion(`{"category":"sales"}`))
	}))
	defer srv.Close()

	p := openai.NewCompatible("vllm", srv.URL, "", "mistral-7b")
	c, err := p.Classify(context.Background(), models.ClassifyRequest{Text: "quote please"})
	require.NoError(t, err)
	assert.Equal(t, "vllm", c.Provider)
	assert.Equal(t, "sales", c.Category)
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			},
			want: llm.ErrExternalService,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
			want: llm.ErrMalformedResponse,
		},
		{
			name: "content is not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(completion("I cannot help with that"))
			},
			want: llm.ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := openai.NewCompatible("openai", srv.URL, "k", "m")
			_, err := p.Classify(context.Background(), models.ClassifyRequest{Text: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClassify_Unreachable(t *testing.T) {
	p := openai.NewCompatible("openai", "http://127.0.0.1:1", "k", "m")
	_, err := p.Classify(context.Background(), models.ClassifyRequest{Text: "x"})
	assert.ErrorIs(t, err, llm.ErrExternalService)
}
