// Package models contains shared data models used across the chaos plan generator.
package models

import (
	"context"
	"iter"
)

// TextModel is the seam every hosted-model integration implements. A single
// call is a single attempt; retry policy lives in the invoker.
type TextModel interface {
	// Generate sends one request and returns the complete reply text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Stream sends one request and yields text deltas as the model produces them.
	// Stopping iteration must release the underlying response stream.
	Stream(ctx context.Context, req GenerateRequest) iter.Seq2[string, error]
	// Name returns the provider identifier (e.g., "bedrock", "gemini").
	Name() string
	// ModelID returns the model identifier requests are sent to.
	ModelID() string
}

// GenerateRequest is one user message plus sampling parameters.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64 // nil leaves the provider default
}

// ModelSelection overrides the configured model per request. Empty fields
// keep the configured value.
type ModelSelection struct {
	Model  string `json:"model"`
	Region string `json:"region"`
}
