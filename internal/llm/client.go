// Package llm wraps the external language-model service. Chat turns use
// plain text generation, feedback uses structured JSON generation validated
// against a schema before anything reaches the caller.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the generator surface consumed by the orchestrator and the
// feedback gate.
type Client interface {
	// GenerateText returns the model's plain-text reply.
	GenerateText(ctx context.Context, model, system, prompt string) (string, error)

	// GenerateStructured returns a JSON object validated against schema.
	// Invalid or empty model output never reaches the caller as data.
	GenerateStructured(ctx context.Context, model, system, prompt string, schema *Schema) (json.RawMessage, error)
}

// Schema is a JSON Schema the structured response must conform to.
type Schema struct {
	// Name identifies the schema for compile caching.
	Name string
	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// ErrUnavailable indicates the provider is out of quota, unreachable,
// unconfigured, or returned empty output.
type ErrUnavailable struct {
	Reason string
	Err    error
}

func (e *ErrUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generator unavailable (%s)", e.Reason)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

// ErrModelNotFound indicates an invalid model identifier or version.
type ErrModelNotFound struct {
	Model string
	Err   error
}

func (e *ErrModelNotFound) Error() string {
	return fmt.Sprintf("model %q not available: %v", e.Model, e.Err)
}

func (e *ErrModelNotFound) Unwrap() error { return e.Err }

// ErrInvalidOutput indicates the model returned content that is not valid
// JSON or does not conform to the requested schema.
type ErrInvalidOutput struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidOutput) Error() string {
	return fmt.Sprintf("invalid generator output: %v", e.Err)
}

func (e *ErrInvalidOutput) Unwrap() error { return e.Err }
