package llm

import (
	"context"
	"encoding/json"
)

// Mock is a scriptable Client for tests. Calls are counted so tests can
// assert the generator was not re-invoked on idempotent paths.
type Mock struct {
	TextFunc       func(model, system, prompt string) (string, error)
	StructuredFunc func(model, system, prompt string, schema *Schema) (json.RawMessage, error)

	TextCalls       int
	StructuredCalls int
}

func (m *Mock) GenerateText(_ context.Context, model, system, prompt string) (string, error) {
	m.TextCalls++
	if m.TextFunc != nil {
		return m.TextFunc(model, system, prompt)
	}
	return "mock reply", nil
}

// GenerateStructured validates whatever the script returns, so a mock
// behaves like the real client: malformed output surfaces as
// ErrInvalidOutput, never as data.
func (m *Mock) GenerateStructured(_ context.Context, model, system, prompt string, schema *Schema) (json.RawMessage, error) {
	m.StructuredCalls++
	raw := json.RawMessage(`{}`)
	if m.StructuredFunc != nil {
		var err error
		raw, err = m.StructuredFunc(model, system, prompt, schema)
		if err != nil {
			return nil, err
		}
	}
	if err := validateOutput(schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
