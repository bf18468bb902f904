package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Compile-time assertion that LLM satisfies Completer.
var _ Completer = (*LLM)(nil)

// translationTemperature keeps the model close to literal. Creative drift is
// a bug in a translator.
const translationTemperature = 0.2

// LLM implements Completer on top of github.com/mozilla-ai/any-llm-go, a
// unified multi-provider chat completion interface.
type LLM struct {
	backend anyllmlib.Provider
	model   string
}

// NewLLM creates an LLM-backed completer. providerName is one of "openai",
// "anthropic", or "ollama"; model is the model identifier for that provider
// (e.g. "gpt-4o-mini", "claude-3-5-haiku-latest", "llama3.2").
//
// opts are any-llm-go options such as anyllmlib.WithAPIKey or
// anyllmlib.WithBaseURL. Without an API key option the backend falls back to
// its environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY).
func NewLLM(providerName, model string, opts ...anyllmlib.Option) (*LLM, error) {
	if model == "" {
		return nil, errors.New("translate: model must not be empty")
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("translate: unsupported provider %q; supported: openai, anthropic, ollama", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("translate: create %q backend: %w", providerName, err)
	}

	return &LLM{backend: backend, model: model}, nil
}

// Complete sends one system+user exchange and returns the assistant's text.
func (l *LLM) Complete(ctx context.Context, system, user string) (string, error) {
	temp := translationTemperature
	params := anyllmlib.CompletionParams{
		Model: l.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: anyllmlib.RoleUser, Content: user},
		},
		Temperature: &temp,
	}

	resp, err := l.backend.Completion(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in completion response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
