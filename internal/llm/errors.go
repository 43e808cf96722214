package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider marks a call the remote service explicitly rejected.
	ErrProvider = errors.New("model provider error")
	// ErrTransport marks a network or serialization failure.
	ErrTransport = errors.New("model transport error")

	ErrModelNotFound       = errors.New("model not found")
	ErrAccessDenied        = errors.New("model access denied")
	ErrGenerationExhausted = errors.New("generation attempts exhausted")
	// ErrEmptyResponse reports a successful call that produced no text.
	ErrEmptyResponse = errors.New("Empty response from LLM")
)

// ProviderError carries the provider's own error code and message.
type ProviderError struct {
	Code    string
	Message string
	// Kind is ErrModelNotFound, ErrAccessDenied or nil.
	Kind error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s - %s", e.Code, e.Message)
}

// Is lets errors.Is match ErrProvider and the error's Kind.
func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	return e.Kind != nil && target == e.Kind
}

// NewTransportError wraps err as a transport failure.
func NewTransportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// ExhaustedError is returned once every blocking attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("All %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrGenerationExhausted, e.Last}
}
