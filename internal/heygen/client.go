// Package heygen drives the HeyGen avatar video API: submit a render, poll
// its status and download the finished file.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/httpapi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL      = "https://api.heygen.com"
	DefaultPollInterval = 5 * time.Second
	defaultHTTPTimeout  = 60 * time.Second

	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
	StatusPending    = "pending"
	StatusWaiting    = "waiting"
)

// ErrRenderFailed is returned when HeyGen reports a failed render.
var ErrRenderFailed = errors.New("heygen render failed")

// Request describes one avatar render driven by an audio URL.
type Request struct {
	AvatarID        string
	AvatarStyle     string
	AudioURL        string
	BackgroundColor string // "#RRGGBB", or "transparent"
	Width           int
	Height          int
}

// VideoStatus is the data block of video_status.get.
type VideoStatus struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	VideoURL  string          `json:"video_url"`
	Duration  float64         `json:"duration"`
	Thumbnail string          `json:"thumbnail_url"`
	Error     json.RawMessage `json:"error"`
}

// Terminal reports whether polling can stop.
func (s VideoStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Queued reports whether the render has not started processing yet.
func (s VideoStatus) Queued() bool {
	return s.Status == StatusPending || s.Status == StatusWaiting
}

// ErrorMessage renders the API error block, which may be a string or object.
func (s VideoStatus) ErrorMessage() string {
	raw := bytes.TrimSpace(s.Error)
	if len(raw) == 0 || string(raw) == "null" {
		return "unknown error"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		if obj.Detail != "" {
			return fmt.Sprintf("%s (%s)", obj.Message, obj.Detail)
		}
		return obj.Message
	}
	return string(raw)
}

// Client talks to api.heygen.com with an X-Api-Key header.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retrier    httpapi.Retrier
	sleep      func(context.Context, time.Duration) error
	logger     *zap.Logger
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

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithRetrier overrides the per-request retry policy.
func WithRetrier(r httpapi.Retrier) Option {
	return func(c *Client) {
		c.retrier = r
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger for poll progress.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retrier:    httpapi.DefaultRetrier(),
		sleep:      httpapi.SleepContext,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type character struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id"`
	AvatarStyle string `json:"avatar_style"`
}

type voice struct {
	Type     string `json:"type"`
	AudioURL string `json:"audio_url"`
}

type background struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

type videoInput struct {
	Character  character  `json:"character"`
	Voice      voice      `json:"voice"`
	Background background `json:"background"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type generateRequest struct {
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   dimension    `json:"dimension"`
}

type generateResponse struct {
	Error json.RawMessage `json:"error"`
	Data  struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

type statusResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    VideoStatus `json:"data"`
}

func buildGenerateRequest(req Request) generateRequest {
	bg := background{Type: "color", Value: req.BackgroundColor}
	if strings.EqualFold(req.BackgroundColor, "transparent") {
		bg = background{Type: "transparent"}
	}
	style := req.AvatarStyle
	if style == "" {
		style = "normal"
	}
	return generateRequest{
		VideoInputs: []videoInput{{
			Character:  character{Type: "avatar", AvatarID: req.AvatarID, AvatarStyle: style},
			Voice:      voice{Type: "audio", AudioURL: req.AudioURL},
			Background: bg,
		}},
		Dimension: dimension{Width: req.Width, Height: req.Height},
	}
}

// CreateVideo submits a render and returns its video id.
func (c *Client) CreateVideo(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("heygen: api key required")
	}
	if req.AvatarID == "" || req.AudioURL == "" {
		return "", errors.New("heygen: avatar id and audio url required")
	}

	payload, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return "", errors.Wrap(err, "heygen: encode request")
	}

	var videoID string
	err = c.retrier.Do(ctx, "heygen generate", func() error {
		var decoded generateResponse
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v2/video/generate", payload, "heygen generate", &decoded); err != nil {
			return err
		}
		if decoded.Data.VideoID == "" {
			return fmt.Errorf("heygen generate: no video id in response (error: %s)", strings.TrimSpace(string(decoded.Error)))
		}
		videoID = decoded.Data.VideoID
		return nil
	})
	return videoID, err
}

// Status fetches the current state of a render.
func (c *Client) Status(ctx context.Context, videoID string) (VideoStatus, error) {
	if c.apiKey == "" {
		return VideoStatus{}, errors.New("heygen: api key required")
	}
	endpoint := c.baseURL + "/v1/video_status.get?video_id=" + url.QueryEscape(videoID)

	var decoded statusResponse
	err := c.retrier.Do(ctx, "heygen status", func() error {
		decoded = statusResponse{}
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, "heygen status", &decoded)
	})
	if err != nil {
		return VideoStatus{}, err
	}
	if decoded.Data.ID == "" {
		decoded.Data.ID = videoID
	}
	return decoded.Data, nil
}

// WaitForCompletion polls every interval until the render completes or fails.
// A failed render returns ErrRenderFailed wrapped with the API message.
func (c *Client) WaitForCompletion(ctx context.Context, videoID string, interval time.Duration) (VideoStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := c.logger.With(zap.String("video_id", videoID))
	for {
		status, err := c.Status(ctx, videoID)
		if err != nil {
			return status, err
		}
		if status.Terminal() {
			if status.Status == StatusFailed {
				return status, errors.Wrapf(ErrRenderFailed, "video %s: %s", videoID, status.ErrorMessage())
			}
			log.Info("render completed", zap.Float64("duration", status.Duration))
			return status, nil
		}
		if status.Queued() {
			log.Debug("render queued", zap.String("status", status.Status))
		} else {
			log.Debug("render in progress", zap.String("status", status.Status))
		}
		if err := c.sleep(ctx, interval); err != nil {
			return status, err
		}
	}
}

// Download streams a finished render to dst. The file appears only once the
// transfer is complete.
func (c *Client) Download(ctx context.Context, videoURL, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "create download directory")
	}
	return c.retrier.Do(ctx, "heygen download", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
		if err != nil {
			return errors.Wrap(err, "heygen download: new request")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "heygen download")
		}
		defer resp.Body.Close()
		if err := httpapi.CheckResponse("heygen download", resp); err != nil {
			return err
		}

		tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
		if err != nil {
			return errors.Wrap(err, "heygen download: temp file")
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, resp.Body); err != nil {
			tmp.Close()
			return errors.Wrap(err, "heygen download: write")
		}
		if err := tmp.Close(); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(os.Rename(tmp.Name(), dst))
	})
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, op string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrapf(err, "%s: new request", op)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}
