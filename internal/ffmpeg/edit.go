package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/ZacxDev/video-presenter/internal/profile"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

func zapInputs(inputs []string) zap.Field { return zap.Strings("inputs", inputs) }
func zapOutput(output string) zap.Field   { return zap.String("output", output) }

func cropStream(inputPath, outputPath string, rect image.Rectangle) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"vf":  fmt.Sprintf("crop=%d:%d:%d:%d", rect.Dx(), rect.Dy(), rect.Min.X, rect.Min.Y),
		"c:v": "libx264",
		"c:a": "aac",
	})
}

// Crop cuts the rectangle out of every frame
func (p *Processor) Crop(ctx context.Context, inputPath, outputPath string, rect image.Rectangle) error {
	if rect.Empty() {
		return fmt.Errorf("crop region %v is empty", rect)
	}
	p.logger.Info("cropping", zap.String("input", inputPath), zap.Stringer("region", rect))
	return p.run(ctx, cropStream(inputPath, outputPath, rect), "crop")
}

func extractAudioStream(inputPath, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"vn":     "",
		"acodec": "copy",
	})
}

// ExtractAudio copies the audio track out without re-encoding
func (p *Processor) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	return p.run(ctx, extractAudioStream(inputPath, outputPath), "extract audio")
}

func muxAudioStream(videoPath, audioPath, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Output([]*ffmpeg.Stream{
		ffmpeg.Input(videoPath).Video(),
		ffmpeg.Input(audioPath).Audio(),
	}, outputPath, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"c:a":     "aac",
		"pix_fmt": "yuv420p",
	})
}

// MuxAudio combines the video of one file with the audio of another
func (p *Processor) MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return p.run(ctx, muxAudioStream(videoPath, audioPath, outputPath), "mux audio")
}

func cutSegmentStream(inputPath, outputPath string, start, duration float64) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", start)}).
		Output(outputPath, ffmpeg.KwArgs{
			"t": fmt.Sprintf("%.3f", duration),
			"c": "copy",
		})
}

// CutSegment copies duration seconds starting at start
func (p *Processor) CutSegment(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("segment duration must be positive, got %.3f", duration)
	}
	return p.run(ctx, cutSegmentStream(inputPath, outputPath, start, duration), "cut segment")
}

func splitAudioStream(inputPath, pattern string, partSeconds int) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath).Output(pattern, ffmpeg.KwArgs{
		"f":                    "segment",
		"segment_time":         partSeconds,
		"segment_start_number": 1,
		"reset_timestamps":     1,
		"vn":                   "",
		"c:a":                  "pcm_s16le",
	})
}

// SplitAudio cuts the input into WAV parts of partSeconds each and returns
// the part paths in playback order.
func (p *Processor) SplitAudio(ctx context.Context, inputPath, outputDir string, partSeconds int) ([]string, error) {
	if partSeconds <= 0 {
		return nil, fmt.Errorf("part length must be positive, got %d", partSeconds)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create part directory")
	}
	pattern := filepath.Join(outputDir, "part_%03d.wav")
	if err := p.run(ctx, splitAudioStream(inputPath, pattern, partSeconds), "split audio"); err != nil {
		return nil, err
	}
	parts, err := filepath.Glob(filepath.Join(outputDir, "part_*.wav"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no audio parts for %s", inputPath)
	}
	return parts, nil
}

func slideShowStream(listPath, outputPath string, fps int) *ffmpeg.Stream {
	return concatDemuxerStream(listPath, outputPath, ffmpeg.KwArgs{
		"vf":      fmt.Sprintf("fps=%d,format=yuv420p", fps),
		"c:v":     "libx264",
		"pix_fmt": "yuv420p",
	})
}

// SlideShow renders a timed concat list of still images into a video
func (p *Processor) SlideShow(ctx context.Context, listPath, outputPath string, fps int) error {
	return p.run(ctx, slideShowStream(listPath, outputPath, fps), "slide show")
}

// OverlaySpec places a scaled foreground video over a background video.
type OverlaySpec struct {
	BackgroundPath string
	ForegroundPath string
	OutputPath     string
	Width          int
	Height         int
	X              int
	Y              int
	Duration       float64 // output length in seconds, zero keeps the shortest
}

func (p *Processor) overlayStream(spec OverlaySpec) *ffmpeg.Stream {
	background := ffmpeg.Input(spec.BackgroundPath)
	foreground := ffmpeg.Input(spec.ForegroundPath)

	scaled := foreground.Video().Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", spec.Width, spec.Height)})
	var extra []string
	if spec.Duration > 0 {
		extra = append(extra, fmt.Sprintf("enable='lte(t,%.3f)'", spec.Duration))
	}
	composed := p.CreateOverlayFilter(background.Video(), scaled,
		fmt.Sprintf("%d", spec.X), fmt.Sprintf("%d", spec.Y), extra...)

	kwargs := ffmpeg.KwArgs{
		"c:v":     "libx264",
		"c:a":     "aac",
		"pix_fmt": "yuv420p",
		"threads": GetOptimalThreadCount(),
	}
	if spec.Duration > 0 {
		kwargs["t"] = fmt.Sprintf("%.3f", spec.Duration)
	} else {
		kwargs["shortest"] = ""
	}
	// Narration comes from the foreground (avatar) track
	return ffmpeg.Output([]*ffmpeg.Stream{composed, foreground.Audio()}, spec.OutputPath, kwargs)
}

// Overlay composites the foreground onto the background
func (p *Processor) Overlay(ctx context.Context, spec OverlaySpec) error {
	for _, in := range []string{spec.BackgroundPath, spec.ForegroundPath} {
		if !fileExists(in) {
			return fmt.Errorf("input not found: %s", in)
		}
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return fmt.Errorf("overlay size %dx%d is invalid", spec.Width, spec.Height)
	}
	p.logger.Info("overlaying",
		zap.String("background", spec.BackgroundPath),
		zap.String("foreground", spec.ForegroundPath),
		zap.Float64("duration", spec.Duration))
	return p.run(ctx, p.overlayStream(spec), "overlay")
}

func encodeFramesStream(pattern string, fps float64, outputPath string, prof profile.Profile) *ffmpeg.Stream {
	kwargs := profile.OutputArgs(prof)
	kwargs["r"] = fmt.Sprintf("%g", fps)
	kwargs["threads"] = GetOptimalThreadCount()
	return ffmpeg.Input(pattern, ffmpeg.KwArgs{"framerate": fmt.Sprintf("%g", fps)}).
		Output(outputPath, kwargs)
}

// EncodeFrames encodes a numbered image sequence with the given profile and
// returns the written path, whose extension follows the profile.
func (p *Processor) EncodeFrames(ctx context.Context, pattern string, fps float64, outputPath string, prof profile.Profile) (string, error) {
	if fps <= 0 {
		return "", fmt.Errorf("frame rate must be positive, got %g", fps)
	}
	outputPath = EnsureExtension(outputPath, prof.GetFileExtension())
	p.logger.Info("encoding frames", zap.String("profile", prof.GetName()), zapOutput(outputPath))
	if err := p.run(ctx, encodeFramesStream(pattern, fps, outputPath, prof), "encode "+prof.GetName()); err != nil {
		return "", err
	}
	return outputPath, nil
}
