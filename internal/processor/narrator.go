package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/script"
	"github.com/ZacxDev/video-presenter/internal/tts"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice tts.Voice, audio tts.AudioConfig) ([]byte, error)
}

// AudioMerger joins audio parts and probes the result.
type AudioMerger interface {
	MediaProber
	ConcatDemuxer(ctx context.Context, inputs []string, outputPath string) error
}

// Narration describes a finished speech track.
type Narration struct {
	Path     string
	Chunks   int
	Skipped  []int
	Duration float64
}

// Narrator handles text to speech for a whole script
type Narrator struct {
	opts   *config.NarrationOptions
	speech Synthesizer
	media  AudioMerger
	logger *zap.Logger
}

// NewNarrator creates a new narrator
func NewNarrator(opts *config.NarrationOptions, speech Synthesizer, media AudioMerger, logger *zap.Logger) *Narrator {
	return &Narrator{
		opts:   opts,
		speech: speech,
		media:  media,
		logger: stageLogger(logger, "tts"),
	}
}

// Process synthesizes every chunk of the script and merges the parts into
// <output dir>/output.<ext>.
func (n *Narrator) Process(ctx context.Context) (*Narration, error) {
	raw, err := os.ReadFile(n.opts.InputPath)
	if err != nil {
		return nil, errors.Wrap(err, "read script")
	}

	maxBytes := n.opts.MaxChunkBytes
	if maxBytes <= 0 {
		maxBytes = config.MaxTTSChunkBytes
	}
	chunks, err := script.SplitChunks(script.FilterSpoken(string(raw)), maxBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "chunk %s", n.opts.InputPath)
	}
	n.logger.Info("script chunked", zap.Int("chunks", len(chunks)), zap.Int("max_bytes", maxBytes))

	if err := os.MkdirAll(n.opts.OutputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	voice := tts.Voice{LanguageCode: n.opts.LanguageCode, Name: n.opts.VoiceName, SSMLGender: n.opts.Gender}
	audio := tts.AudioConfig{AudioEncoding: n.opts.Encoding, SpeakingRate: n.opts.SpeakingRate}
	ext := tts.Extension(n.opts.Encoding)

	result := &Narration{Chunks: len(chunks)}
	parts := make([]string, 0, len(chunks))
	defer func() {
		for _, part := range parts {
			_ = os.Remove(part)
		}
	}()

	bar := newProgress(len(chunks), "synthesizing")
	for i, chunk := range chunks {
		data, err := n.speech.Synthesize(ctx, chunk, voice, audio)
		if errors.Is(err, tts.ErrNoAudio) {
			n.logger.Warn("no audio content received, skipping chunk", zap.Int("chunk", i))
			result.Skipped = append(result.Skipped, i)
			_ = bar.Add(1)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d", i)
		}

		part := filepath.Join(n.opts.OutputDir, fmt.Sprintf(config.NarrationPartsName, i, ext))
		if err := os.WriteFile(part, data, 0644); err != nil {
			return nil, errors.Wrapf(err, "write chunk %d", i)
		}
		parts = append(parts, part)
		n.logger.Debug("chunk saved", zap.Int("chunk", i), zap.String("path", part), zap.Int("bytes", len(data)))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if len(parts) == 0 {
		return nil, errors.New("no audio chunks were synthesized")
	}

	output := filepath.Join(n.opts.OutputDir, "output."+ext)
	if err := n.media.ConcatDemuxer(ctx, parts, output); err != nil {
		return nil, errors.Wrap(err, "merge audio chunks")
	}

	duration, err := validateOutput(n.media, output)
	if err != nil {
		return nil, err
	}
	result.Path = output
	result.Duration = duration
	n.logger.Info("narration written", zap.String("path", output), zap.Float64("duration", duration))
	return result, nil
}
