// Package completion streams text continuations from a language model.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/rs/zerolog"
)

// RequestLimitMessage is what the provider answers once the daily quota is used.
const RequestLimitMessage = "You have reached your request limit for the day."

var ErrRequestLimit = errors.New(RequestLimitMessage)

var completionLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	completionLogger = l
}

// Completer starts a streamed completion for prompt. Cancelling ctx stops
// the stream.
type Completer interface {
	Stream(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields text deltas in order. Next returns false once the stream is
// finished or failed; Err tells which.
type Stream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// IsRequestLimit reports whether err means the provider quota is exhausted.
func IsRequestLimit(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRequestLimit) || strings.Contains(err.Error(), RequestLimitMessage)
}

// New builds the completer selected by cfg.Provider.
func New(cfg config.CompletionConfig, apiKey string) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(Settings{
			Model:        cfg.Model,
			APIKey:       apiKey,
			BaseURL:      cfg.BaseURL,
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    int64(cfg.MaxTokens),
		})
	case "mock", "":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
