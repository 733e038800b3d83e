package processor

import (
	"context"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OverlayMedia composites one video over another.
type OverlayMedia interface {
	MediaProber
	Overlay(ctx context.Context, spec ffmpeg.OverlaySpec) error
}

// Assembler places the avatar video over the slide video
type Assembler struct {
	opts   *config.AssembleOptions
	media  OverlayMedia
	logger *zap.Logger
}

// NewAssembler creates a new assembler
func NewAssembler(opts *config.AssembleOptions, media OverlayMedia, logger *zap.Logger) *Assembler {
	return &Assembler{
		opts:   opts,
		media:  media,
		logger: stageLogger(logger, "assemble"),
	}
}

// Process writes the combined video. Without an explicit duration the output
// runs as long as the avatar narration.
func (a *Assembler) Process(ctx context.Context) (string, error) {
	for _, in := range []string{a.opts.SlidesPath, a.opts.AvatarPath} {
		if err := requireFile(in); err != nil {
			return "", err
		}
	}

	duration := a.opts.Duration.Seconds()
	if duration <= 0 {
		avatarLength, err := a.media.GetMediaDuration(a.opts.AvatarPath)
		if err != nil {
			return "", errors.Wrap(err, "probe avatar length")
		}
		duration = avatarLength
	}

	outputPath, err := ensureOutputPath(a.opts.OutputPath, ".mp4")
	if err != nil {
		return "", err
	}
	spec := ffmpeg.OverlaySpec{
		BackgroundPath: a.opts.SlidesPath,
		ForegroundPath: a.opts.AvatarPath,
		OutputPath:     outputPath,
		Width:          orDefault(a.opts.AvatarWidth, config.AvatarOverlayWidth),
		Height:         orDefault(a.opts.AvatarHeight, config.AvatarOverlayHeight),
		X:              a.opts.X,
		Y:              a.opts.Y,
		Duration:       duration,
	}
	a.logger.Info("assembling",
		zap.String("slides", spec.BackgroundPath),
		zap.String("avatar", spec.ForegroundPath),
		zap.Int("width", spec.Width),
		zap.Int("height", spec.Height),
		zap.Float64("duration", duration))
	if err := a.media.Overlay(ctx, spec); err != nil {
		return "", err
	}
	a.logger.Info("final video written", zap.String("path", outputPath))
	return outputPath, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
