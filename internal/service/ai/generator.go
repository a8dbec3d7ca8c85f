package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pocusai/internal/config"
)

var (
	ErrMissingConfiguration = errors.New("API key is not configured for the model provider.")
	ErrEmptyResponse        = errors.New("No response generated.")
)

// Generator is the model boundary: one request in, generated text or a failure out.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ModelRequestError wraps a failure reported by a provider.
type ModelRequestError struct {
	Provider string
	Err      error
}

func (e *ModelRequestError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ModelRequestError) Unwrap() error { return e.Err }

// Message is the text shown to the user for this failure.
func (e *ModelRequestError) Message() string { return e.Err.Error() }

// FailureMessage returns the human-readable text for a generation failure.
func FailureMessage(err error) string {
	var reqErr *ModelRequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message()
	}
	return err.Error()
}

// NewGenerator selects the adapter for the configured provider. Credentials
// are checked per call so a missing key only fails that call.
func NewGenerator(cfg *config.Config) (Generator, error) {
	name, provider := cfg.Provider()
	switch strings.ToLower(name) {
	case "gemini":
		return newGeminiGenerator(provider), nil
	case "openai", "claude":
		return newEinoGenerator(strings.ToLower(name), provider), nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", name)
	}
}
