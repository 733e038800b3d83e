// Package tts is a client for the Google Cloud Text-to-Speech REST API.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/httpapi"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL     = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultHTTPTimeout = 60 * time.Second
)

// ErrNoAudio means the API answered 200 without audio content.
var ErrNoAudio = errors.New("tts response has no audio content")

// Voice selects the speaker.
type Voice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

// AudioConfig selects the encoding and pace.
type AudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       Voice          `json:"voice"`
	AudioConfig AudioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Client calls text:synthesize with an API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retrier    httpapi.Retrier
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithRetrier overrides the retry policy.
func WithRetrier(r httpapi.Retrier) Option {
	return func(c *Client) {
		c.retrier = r
	}
}

// NewClient builds a client for apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retrier:    httpapi.DefaultRetrier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize converts text to audio bytes in the requested encoding.
func (c *Client) Synthesize(ctx context.Context, text string, voice Voice, audio AudioConfig) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.New("tts: api key required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: text required")
	}

	payload, err := json.Marshal(synthesizeRequest{
		Input:       synthesisInput{Text: text},
		Voice:       voice,
		AudioConfig: audio,
	})
	if err != nil {
		return nil, errors.Wrap(err, "tts: encode request")
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "tts: parse base url")
	}
	q := endpoint.Query()
	q.Set("key", c.apiKey)
	endpoint.RawQuery = q.Encode()

	var out []byte
	err = c.retrier.Do(ctx, "tts synthesize", func() error {
		var callErr error
		out, callErr = c.synthesizeOnce(ctx, endpoint.String(), payload)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) synthesizeOnce(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "tts: new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tts: request failed")
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse("tts synthesize", resp); err != nil {
		return nil, err
	}

	var decoded synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "tts: decode response")
	}
	if decoded.AudioContent == "" {
		return nil, ErrNoAudio
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, errors.Wrap(err, "tts: decode audio content")
	}
	return audio, nil
}

// Extension returns the file extension for an audio encoding.
func Extension(encoding string) string {
	switch strings.ToUpper(encoding) {
	case "OGG_OPUS":
		return "ogg"
	case "LINEAR16":
		return "wav"
	default:
		return "mp3"
	}
}
