// Package llm wraps the chat completion providers used to write and break
// down presentation scripts.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/pkg/errors"
)

// DefaultSystemPrompt is sent when the configuration leaves it empty.
const DefaultSystemPrompt = "Follow the user's instructions carefully."

// ErrEmptyResponse means the provider answered without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Completer produces a single assistant reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Settings are the provider independent knobs.
type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// New builds the completer selected by llm.provider.
func New(ctx context.Context, cfg config.LLM) (Completer, error) {
	settings := Settings{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		BaseURL:     strings.TrimSpace(cfg.BaseURL),
		Model:       strings.TrimSpace(cfg.Model),
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	if settings.APIKey == "" {
		return nil, errors.Errorf("llm: no api key for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(settings), nil
	case "gemini":
		return NewGemini(ctx, settings)
	default:
		return nil, errors.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

func systemPrompt(system string) string {
	if strings.TrimSpace(system) == "" {
		return DefaultSystemPrompt
	}
	return system
}
