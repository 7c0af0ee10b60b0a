package core

import (
	"context"
)

// SamplingConfig is the caller-supplied sampling configuration for one
// oracle call. A fixed temperature keeps evaluation scores comparable
// across candidates within a run.
type SamplingConfig struct {
	Temperature float64
	MaxTokens   int
}

// ModelClient is the single logical call type the engine needs from the
// external model service: text in, text out. The engine depends on
// nothing else about the service's wire format.
type ModelClient interface {
	// Complete sends a system instruction plus user content and returns
	// the model's text response.
	Complete(ctx context.Context, systemInstruction, userContent string, sampling SamplingConfig) (string, error)

	// ModelID identifies the underlying model for logging.
	ModelID() string
}
