// Package translate provides LLM-backed text translation.
//
// The translator builds a constrained prompt around the user's text and asks
// a chat completion model to render it in the target language. The source
// language is never supplied; the model detects it. Any chat-capable backend
// reachable through any-llm-go can serve as the engine.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText is returned when there is nothing to translate.
var ErrEmptyText = errors.New("translate: text must not be empty")

// Completer is the minimal LLM surface the translator needs: one system
// prompt, one user message, one text answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Translator renders text into a target language via a chat completion model.
type Translator struct {
	completer Completer
}

// New creates a Translator on top of any Completer (see NewLLM for the
// production engine).
func New(c Completer) *Translator {
	return &Translator{completer: c}
}

// systemPrompt constrains the model to emit only the translated text. Models
// love to add commentary; the prompt forbids it explicitly.
func systemPrompt(targetLang string) string {
	return fmt.Sprintf(
		"You are a translation engine. Translate the user's text into %s. "+
			"Detect the source language yourself. Reply with ONLY the translated "+
			"text, no explanations, no quotation marks, no notes.",
		targetLang,
	)
}

// Translate returns text rendered in targetLang. targetLang is a human or
// BCP-47 language name ("German", "de"); both work because the model
// interprets it.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if targetLang == "" {
		return "", errors.New("translate: targetLang must not be empty")
	}

	out, err := t.completer.Complete(ctx, systemPrompt(targetLang), text)
	if err != nil {
		return "", fmt.Errorf("translate: completion: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("translate: model returned no text")
	}
	return out, nil
}
