package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini completes prompts through the Gemini generateContent API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini builds a Gemini completer.
func NewGemini(ctx context.Context, s Settings) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	if s.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: s.Timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	model := s.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model, temperature: float32(s.Temperature)}, nil
}

func (g *Gemini) Name() string { return "gemini/" + g.model }

// Complete sends the user prompt with the system prompt as instruction.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt(system), genai.RoleUser),
			Temperature:       genai.Ptr(g.temperature),
		})
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
