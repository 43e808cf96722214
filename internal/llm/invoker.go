// Package llm drives a hosted text model: a retried blocking call, a
// single-attempt streaming call, and a connectivity probe.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
	DefaultMaxTokens   = 16384
	DefaultTemperature = 0.2

	probePrompt    = "Hi"
	probeMaxTokens = 10
)

// Invoker applies the request parameters and retry policy around a TextModel.
type Invoker struct {
	model          models.TextModel
	maxAttempts    int
	backoff        time.Duration
	attemptTimeout time.Duration
	maxTokens      int
	temperature    float64
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxAttempts sets how many blocking attempts are made before giving up.
func WithMaxAttempts(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay. Attempt k+1 waits base*(k+1).
func WithBackoff(d time.Duration) Option {
	return func(i *Invoker) { i.backoff = d }
}

// WithAttemptTimeout bounds each blocking attempt. Zero means no bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.attemptTimeout = d }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) { i.sleep = fn }
}

// NewInvoker creates an Invoker around model.
func NewInvoker(model models.TextModel, opts ...Option) *Invoker {
	i := &Invoker{
		model:       model,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Model returns the wrapped model.
func (i *Invoker) Model() models.TextModel { return i.model }

// Invoke sends prompt and returns the reply text, retrying provider and
// transport failures alike. An empty reply is returned as-is.
func (i *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	var last error
	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		text, err := i.attempt(ctx, prompt)
		if err == nil {
			return text, nil
		}
		last = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		slog.Warn("model attempt failed",
			"provider", i.model.Name(),
			"model", i.model.ModelID(),
			"attempt", attempt+1,
			"error", err,
		)

		if attempt < i.maxAttempts-1 {
			if err := i.sleep(ctx, i.backoff*time.Duration(attempt+1)); err != nil {
				return "", err
			}
		}
	}
	return "", &ExhaustedError{Attempts: i.maxAttempts, Last: last}
}

func (i *Invoker) attempt(ctx context.Context, prompt string) (string, error) {
	if i.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.attemptTimeout)
		defer cancel()
	}
	return i.model.Generate(ctx, i.request(prompt))
}

// InvokeStreaming yields non-empty text fragments as the model produces
// them. There is no retry: a failure is yielded once and ends the sequence.
func (i *Invoker) InvokeStreaming(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for text, err := range i.model.Stream(ctx, i.request(prompt)) {
			if err != nil {
				yield("", err)
				return
			}
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// TestConnection sends a minimal request to validate credentials and model
// access.
func (i *Invoker) TestConnection(ctx context.Context) (bool, string) {
	id := i.model.ModelID()
	provider := DisplayName(i.model.Name())

	_, err := i.model.Generate(ctx, models.GenerateRequest{
		Prompt:    probePrompt,
		MaxTokens: probeMaxTokens,
	})
	if err == nil {
		return true, fmt.Sprintf("Connected to %s with model '%s'", provider, id)
	}

	var pe *ProviderError
	switch {
	case errors.Is(err, ErrModelNotFound):
		return false, fmt.Sprintf("Model '%s' not found. Check model ID and region.", id)
	case errors.Is(err, ErrAccessDenied):
		return false, fmt.Sprintf("Access denied. Enable access to model '%s' for these credentials.", id)
	case errors.As(err, &pe):
		return false, fmt.Sprintf("Provider error: %s - %s", pe.Code, pe.Message)
	default:
		return false, fmt.Sprintf("Failed to connect to %s: %v", provider, err)
	}
}

func (i *Invoker) request(prompt string) models.GenerateRequest {
	temp := i.temperature
	return models.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   i.maxTokens,
		Temperature: &temp,
	}
}

// DisplayName returns the human-facing name of a provider identifier.
func DisplayName(provider string) string {
	switch provider {
	case "bedrock":
		return "AWS Bedrock"
	case "gemini":
		return "Google Gemini"
	default:
		return provider
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
