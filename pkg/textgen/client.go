// Package textgen abstracts the text generation backend used by the
// ensemble stages. Callers send a prompt pair and receive raw text; all
// structure is imposed downstream by the stage parsers.
package textgen

import (
	"context"
	"errors"
	"fmt"
)

// Request is one generation call. System carries the role framing,
// Prompt the stage-specific instruction block.
type Request struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Generator produces text for a request. Implementations must honor
// context cancellation and return the raw model output untrimmed.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var (
	ErrEmptyResponse = errors.New("textgen: backend returned no choices")
	ErrRateLimited   = errors.New("textgen: request rejected by rate limiter")
)

// BackendError reports a non-success HTTP status from the generation
// backend. Retryable marks transient statuses worth another attempt.
type BackendError struct {
	StatusCode int
	Retryable  bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("textgen: backend status %d", e.StatusCode)
}
