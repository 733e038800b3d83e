package processor

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/ZacxDev/video-presenter/internal/imaging"
	"github.com/ZacxDev/video-presenter/internal/profile"
	"github.com/ZacxDev/video-presenter/internal/workspace"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DebugFrameName = "debug_frame_transparent.png"

// KeyMedia is the ffmpeg surface used for background removal.
type KeyMedia interface {
	GetVideoMetadata(path string) (*ffmpeg.VideoMetadata, error)
	OpenFrameReader(ctx context.Context, inputPath string, width, height int, limit float64) (*ffmpeg.FrameReader, error)
	EncodeFrames(ctx context.Context, pattern string, fps float64, outputPath string, prof profile.Profile) (string, error)
}

// Removal describes the transparent renders of one video.
type Removal struct {
	Frames     int
	Outputs    []string
	DebugFrame string
	FramesDir  string // set only when the frames were kept
}

// BackgroundRemover keys a solid background colour out to alpha
type BackgroundRemover struct {
	opts   *config.RemovalOptions
	media  KeyMedia
	logger *zap.Logger
}

// NewBackgroundRemover creates a new background remover
func NewBackgroundRemover(opts *config.RemovalOptions, media KeyMedia, logger *zap.Logger) *BackgroundRemover {
	return &BackgroundRemover{
		opts:   opts,
		media:  media,
		logger: stageLogger(logger, "keyout"),
	}
}

// Process removes the background of the configured input.
func (r *BackgroundRemover) Process(ctx context.Context) (*Removal, error) {
	return r.Remove(ctx, r.opts.InputPath)
}

// Remove writes every frame of inputPath as a PNG with alpha and encodes the
// sequence once per requested profile.
func (r *BackgroundRemover) Remove(ctx context.Context, inputPath string) (*Removal, error) {
	if err := requireFile(inputPath); err != nil {
		return nil, err
	}
	profiles, err := r.profiles()
	if err != nil {
		return nil, err
	}
	key, threshold, err := r.keySettings()
	if err != nil {
		return nil, err
	}

	outputDir := r.opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	free, err := workspace.EnsureFree(outputDir, config.MinFreeDiskBytes)
	if err != nil {
		return nil, err
	}
	r.logger.Info("disk space check", zap.String("free", humanize.Bytes(free)), zap.String("dir", outputDir))

	meta, err := r.media.GetVideoMetadata(inputPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get video metadata")
	}
	if meta.FPS <= 0 {
		return nil, fmt.Errorf("cannot determine frame rate of %s", inputPath)
	}
	limit := r.opts.Duration.Seconds()
	expected := framesToProcess(meta, limit)
	r.logger.Info("keying out background",
		zap.String("input", inputPath),
		zap.String("color", fmt.Sprintf("#%02x%02x%02x", key.R, key.G, key.B)),
		zap.Int("threshold", threshold),
		zap.Int("frames", expected))

	framesDir, err := os.MkdirTemp(outputDir, config.RemovalTempPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "create frame directory")
	}
	result := &Removal{}
	if r.opts.KeepFrames {
		result.FramesDir = framesDir
	} else {
		defer func() {
			if err := removeAllRetry(framesDir, 3, time.Second, r.logger); err != nil {
				r.logger.Warn("frame directory left behind", zap.String("dir", framesDir), zap.Error(err))
			}
		}()
	}

	reader, err := r.media.OpenFrameReader(ctx, inputPath, meta.Width, meta.Height, limit)
	if err != nil {
		return nil, err
	}
	debugPath := filepath.Join(outputDir, DebugFrameName)
	frames, debugSaved, err := keyFrames(reader, framesDir, key, threshold, debugPath, newProgress(expected, "keying"))
	if err != nil {
		return nil, err
	}
	result.Frames = frames
	if debugSaved {
		result.DebugFrame = debugPath
		r.logger.Info("saved debug frame", zap.String("path", debugPath))
	}

	base := sanitizeFilename(filepath.Base(inputPath))
	pattern := filepath.Join(framesDir, config.FramePattern)
	for _, prof := range profiles {
		out := filepath.Join(outputDir, fmt.Sprintf("%s_transparent_%s", base, prof.GetName()))
		written, err := r.media.EncodeFrames(ctx, pattern, meta.FPS, out, prof)
		if err != nil {
			return nil, err
		}
		result.Outputs = append(result.Outputs, written)
		if info, err := os.Stat(written); err == nil {
			r.logger.Info("transparent video written",
				zap.String("profile", prof.GetName()),
				zap.String("path", written),
				zap.String("size", humanize.Bytes(uint64(info.Size()))))
		}
	}
	return result, nil
}

func (r *BackgroundRemover) profiles() ([]profile.Profile, error) {
	names := r.opts.Profiles
	if len(names) == 0 {
		names = []string{"prores", "webm-alpha"}
	}
	out := make([]profile.Profile, 0, len(names))
	for _, name := range names {
		prof, err := profile.Get(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if !prof.HasAlpha() {
			r.logger.Warn("profile has no alpha channel, transparency will be lost", zap.String("profile", name))
		}
		out = append(out, prof)
	}
	return out, nil
}

func (r *BackgroundRemover) keySettings() (color.RGBA, int, error) {
	hex := r.opts.KeyColor
	if hex == "" {
		hex = config.DefaultKeyColor
	}
	key, err := imaging.ParseHexColor(hex)
	if err != nil {
		return key, 0, err
	}
	threshold := config.DefaultThreshold
	if r.opts.Threshold != nil {
		threshold = *r.opts.Threshold
	}
	if threshold < 0 || threshold > 255 {
		return key, 0, fmt.Errorf("threshold %d must be between 0 and 255", threshold)
	}
	return key, threshold, nil
}

// framesToProcess is the frame count covered by limit seconds, capped at the
// stream length. A zero limit covers the whole stream.
func framesToProcess(meta *ffmpeg.VideoMetadata, limit float64) int {
	if limit <= 0 {
		return meta.Frames
	}
	n := int(math.Floor(meta.FPS * limit))
	if meta.Frames > 0 && n > meta.Frames {
		return meta.Frames
	}
	return n
}

// keyFrames writes each frame from src as frame_NNNN.png with the key colour
// made transparent. The frame at config.DebugFrameIndex is also written to
// debugPath. src is closed on return.
func keyFrames(src FrameSource, dir string, key color.RGBA, threshold int, debugPath string, bar progress) (int, bool, error) {
	defer func() { _ = bar.Finish() }()
	count := 0
	debugSaved := false
	for {
		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = src.Close()
			return count, debugSaved, err
		}
		keyed := imaging.KeyOut(frame, key, threshold)
		path := filepath.Join(dir, fmt.Sprintf(config.FramePattern, count))
		if err := writePNG(path, keyed); err != nil {
			_ = src.Close()
			return count, debugSaved, errors.Wrapf(err, "failed to save frame %d", count)
		}
		if count == config.DebugFrameIndex && debugPath != "" {
			if err := writePNG(debugPath, keyed); err == nil {
				debugSaved = true
			}
		}
		count++
		_ = bar.Add(1)
	}
	if err := src.Close(); err != nil {
		return count, debugSaved, err
	}
	if count == 0 {
		return 0, false, errors.New("no frames were saved")
	}
	return count, debugSaved, nil
}
