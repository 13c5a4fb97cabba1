package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	chatTemperature = 0.7
	evalTemperature = 0.3
)

// Gemini implements Client over the Google Gemini SDK. A client built
// without an API key stays constructible but fails every call as
// unavailable, so a misconfigured deployment degrades instead of crashing
// at boot.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return &Gemini{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	if g.client == nil {
		return "", &ErrUnavailable{Reason: "missing API key"}
	}
	temp := float32(chatTemperature)
	result, err := g.client.Models.GenerateContent(ctx, model, userContents(prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(system),
		Temperature:       &temp,
	})
	if err != nil {
		return "", mapGeminiError(model, err)
	}
	return strings.TrimSpace(result.Text()), nil
}

func (g *Gemini) GenerateStructured(ctx context.Context, model, system, prompt string, schema *Schema) (json.RawMessage, error) {
	if g.client == nil {
		return nil, &ErrUnavailable{Reason: "missing API key"}
	}
	temp := float32(evalTemperature)
	result, err := g.client.Models.GenerateContent(ctx, model, userContents(prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(system),
		ResponseMIMEType:  "application/json",
		Temperature:       &temp,
	})
	if err != nil {
		return nil, mapGeminiError(model, err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, &ErrUnavailable{Reason: "empty structured output"}
	}
	raw := json.RawMessage(text)
	if err := validateOutput(schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func userContents(prompt string) []*genai.Content {
	return []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
}

func systemContent(system string) *genai.Content {
	if system == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{{Text: system}}}
}

func mapGeminiError(model string, err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &ErrUnavailable{Reason: "quota exceeded", Err: err}
		case apiErr.Code == http.StatusNotFound:
			return &ErrModelNotFound{Model: model, Err: err}
		case apiErr.Code >= 500:
			return &ErrUnavailable{Reason: "provider error", Err: err}
		}
	}
	return &ErrUnavailable{Reason: "request failed", Err: err}
}
