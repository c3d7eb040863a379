package ai

import (
	"errors"

	"github.com/kiranshivaraju/inboxlens/internal/ai/llm"
)

// Analyzer errors. All of them are local to the item being analyzed.
var (
	ErrExternalService   = llm.ErrExternalService
	ErrMalformedResponse = llm.ErrMalformedResponse
	ErrInferenceTimeout  = llm.ErrInferenceTimeout
	ErrEmptyInput        = errors.New("message has no analyzable text")
)
