// Package provider defines the generative and embedding capabilities the
// pipeline consumes, plus the OpenAI-compatible HTTP implementation.
package provider

import (
	"context"
	"fmt"
)

// Completion is the outcome of a generative call.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Generator produces a test-case artifact for a prompt. The only paid
// capability in the pipeline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Completion, error)
}

// Embedder maps text to a fixed-dimensionality vector, deterministic for
// identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Error reports a transport, auth, or rate-limit failure from the provider.
type Error struct {
	Op         string // "generate" or "embed"
	StatusCode int    // 0 for transport errors
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
