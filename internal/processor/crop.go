package processor

import (
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/ZacxDev/video-presenter/internal/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FrameSource yields decoded frames until io.EOF.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
}

// FrameSink accepts frames for encoding.
type FrameSink interface {
	Write(img image.Image) error
	Close() error
}

// CropMedia is the ffmpeg surface used by the cropper.
type CropMedia interface {
	GetVideoMetadata(path string) (*ffmpeg.VideoMetadata, error)
	OpenFrameReader(ctx context.Context, inputPath string, width, height int, limit float64) (*ffmpeg.FrameReader, error)
	OpenFrameWriter(ctx context.Context, outputPath string, width, height int, fps float64) (*ffmpeg.FrameWriter, error)
	Crop(ctx context.Context, inputPath, outputPath string, rect image.Rectangle) error
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
	MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// Cropper masks a circle or cuts a rectangle out of a video
type Cropper struct {
	opts   *config.CropOptions
	media  CropMedia
	logger *zap.Logger
}

// NewCropper creates a new cropper
func NewCropper(opts *config.CropOptions, media CropMedia, logger *zap.Logger) *Cropper {
	return &Cropper{
		opts:   opts,
		media:  media,
		logger: stageLogger(logger, "crop"),
	}
}

// Process applies the selected shape to every frame and restores the
// original audio track.
func (c *Cropper) Process(ctx context.Context) (string, error) {
	if err := requireFile(c.opts.InputPath); err != nil {
		return "", err
	}
	meta, err := c.media.GetVideoMetadata(c.opts.InputPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to get video metadata")
	}
	sel, err := c.selection(meta)
	if err != nil {
		return "", err
	}
	outputPath, err := ensureOutputPath(c.opts.OutputPath, filepath.Ext(c.opts.OutputPath))
	if err != nil {
		return "", err
	}

	tempDir, err := os.MkdirTemp(filepath.Dir(outputPath), ".crop_")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(tempDir)

	video := filepath.Join(tempDir, "video.mp4")
	switch c.opts.Shape {
	case "circle":
		center, radius := sel.Circle()
		c.logger.Info("masking circle", zap.Any("center", center), zap.Int("radius", radius))
		if err := c.maskCircle(ctx, meta, video, center, radius); err != nil {
			return "", err
		}
	default:
		if err := c.media.Crop(ctx, c.opts.InputPath, video, sel.Rect()); err != nil {
			return "", err
		}
	}

	if !meta.HasAudio {
		c.logger.Warn("input has no audio track, output is silent")
		return outputPath, errors.WithStack(os.Rename(video, outputPath))
	}
	audio := filepath.Join(tempDir, "audio.mka")
	if err := c.media.ExtractAudio(ctx, c.opts.InputPath, audio); err != nil {
		return "", err
	}
	if err := c.media.MuxAudio(ctx, video, audio, outputPath); err != nil {
		return "", err
	}
	c.logger.Info("cropped video written", zap.String("path", outputPath))
	return outputPath, nil
}

// Preview writes the first frame with the selection outlined as a PNG.
func (c *Cropper) Preview(ctx context.Context) (string, error) {
	if err := requireFile(c.opts.InputPath); err != nil {
		return "", err
	}
	meta, err := c.media.GetVideoMetadata(c.opts.InputPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to get video metadata")
	}
	sel, err := c.selection(meta)
	if err != nil {
		return "", err
	}

	reader, err := c.media.OpenFrameReader(ctx, c.opts.InputPath, meta.Width, meta.Height, 0)
	if err != nil {
		return "", err
	}
	frame, err := reader.Next()
	_ = reader.Close()
	if err != nil {
		return "", errors.Wrap(err, "read first frame")
	}

	outputPath, err := ensureOutputPath(c.opts.OutputPath, ".png")
	if err != nil {
		return "", err
	}
	if err := writePNG(outputPath, outline(frame, c.opts.Shape, sel)); err != nil {
		return "", err
	}
	c.logger.Info("preview written", zap.String("path", outputPath))
	return outputPath, nil
}

func (c *Cropper) selection(meta *ffmpeg.VideoMetadata) (imaging.Selection, error) {
	sel, err := imaging.NewSelection(c.opts.From, c.opts.To)
	if err != nil {
		return sel, err
	}
	bounds := image.Rect(0, 0, meta.Width, meta.Height)
	return sel, sel.Validate(c.opts.Shape, bounds)
}

func (c *Cropper) maskCircle(ctx context.Context, meta *ffmpeg.VideoMetadata, output string, center image.Point, radius int) error {
	fps := meta.FPS
	if fps <= 0 {
		fps = float64(config.SlideFPS)
	}
	reader, err := c.media.OpenFrameReader(ctx, c.opts.InputPath, meta.Width, meta.Height, 0)
	if err != nil {
		return err
	}
	writer, err := c.media.OpenFrameWriter(ctx, output, meta.Width, meta.Height, fps)
	if err != nil {
		_ = reader.Close()
		return err
	}
	frames, err := maskFrames(reader, writer, center, radius, newProgress(meta.Frames, "masking"))
	if err != nil {
		return err
	}
	c.logger.Info("frames masked", zap.Int("frames", frames))
	return nil
}

// maskFrames copies every frame from src to dst with the circle mask applied
// and closes both ends.
func maskFrames(src FrameSource, dst FrameSink, center image.Point, radius int, bar progress) (int, error) {
	defer func() { _ = bar.Finish() }()
	count := 0
	for {
		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = src.Close()
			_ = dst.Close()
			return count, err
		}
		imaging.ApplyCircleMask(frame, center, radius)
		if err := dst.Write(frame); err != nil {
			_ = src.Close()
			_ = dst.Close()
			return count, err
		}
		count++
		_ = bar.Add(1)
	}
	if err := src.Close(); err != nil {
		_ = dst.Close()
		return count, err
	}
	if err := dst.Close(); err != nil {
		return count, err
	}
	if count == 0 {
		return 0, errors.New("no frames decoded")
	}
	return count, nil
}

func outline(frame image.Image, shape string, sel imaging.Selection) *image.RGBA {
	if shape == "circle" {
		center, radius := sel.Circle()
		return imaging.DrawCircleOutline(frame, center, radius)
	}
	return imaging.DrawRectOutline(frame, sel.Rect())
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.WithStack(f.Close())
}
