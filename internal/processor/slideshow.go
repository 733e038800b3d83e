package processor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/ZacxDev/video-presenter/internal/slides"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const SlidesListName = "slides_list.txt"

// SlideRasterizer turns slide files into still images.
type SlideRasterizer interface {
	Images(ctx context.Context, slideFiles []string, imagesDir string) ([]string, error)
}

// SlideMedia renders a timed image list into a video.
type SlideMedia interface {
	MediaProber
	SlideShow(ctx context.Context, listPath, outputPath string, fps int) error
}

// SlideVideo describes a rendered slide show.
type SlideVideo struct {
	Path     string
	Slides   int
	Expected float64 // summed slide durations
	Duration float64 // probed length of the output
}

// SlideShow converts a directory of slides into a timed video
type SlideShow struct {
	opts   *config.SlideShowOptions
	raster SlideRasterizer
	media  SlideMedia
	logger *zap.Logger
}

// NewSlideShow creates a new slide show renderer
func NewSlideShow(opts *config.SlideShowOptions, raster SlideRasterizer, media SlideMedia, logger *zap.Logger) *SlideShow {
	return &SlideShow{
		opts:   opts,
		raster: raster,
		media:  media,
		logger: stageLogger(logger, "slides"),
	}
}

// Split writes every page of the given decks into the slides directory.
func (s *SlideShow) Split(decks []string) ([]int, error) {
	return slides.SplitPDFs(decks, s.opts.SlidesDir, s.logger)
}

// Process rasterizes the slides, pairs them with their durations and renders
// the video.
func (s *SlideShow) Process(ctx context.Context) (*SlideVideo, error) {
	timings, err := s.timings()
	if err != nil {
		return nil, err
	}
	files, err := slides.Collect(s.opts.SlidesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no slides found in %s", s.opts.SlidesDir)
	}
	// Check the counts before spending time on rasterizing.
	if len(files) != len(timings.Durations) {
		return nil, fmt.Errorf("found %d slides but %d durations", len(files), len(timings.Durations))
	}

	imagesDir := s.opts.ImagesDir
	if imagesDir == "" {
		imagesDir = filepath.Clean(s.opts.SlidesDir) + "_images"
	}
	images, err := s.raster.Images(ctx, files, imagesDir)
	if err != nil {
		return nil, err
	}
	entries, err := timings.ConcatEntries(images)
	if err != nil {
		return nil, err
	}
	listPath := filepath.Join(imagesDir, SlidesListName)
	if err := ffmpeg.WriteConcatList(listPath, entries); err != nil {
		return nil, err
	}

	outputPath, err := ensureOutputPath(s.opts.OutputPath, ".mp4")
	if err != nil {
		return nil, err
	}
	fps := s.opts.FPS
	if fps <= 0 {
		fps = config.SlideFPS
	}
	result := &SlideVideo{Path: outputPath, Slides: len(images), Expected: timings.Total()}
	s.logger.Info("rendering slide video", zap.Int("slides", result.Slides), zap.Float64("seconds", result.Expected), zap.Int("fps", fps))
	if err := s.media.SlideShow(ctx, listPath, outputPath, fps); err != nil {
		return nil, err
	}

	if result.Duration, err = validateOutput(s.media, outputPath); err != nil {
		return nil, err
	}
	s.logger.Info("slide video written", zap.String("path", outputPath), zap.Float64("duration", result.Duration))
	return result, nil
}

func (s *SlideShow) timings() (slides.Timings, error) {
	if len(s.opts.Durations) > 0 {
		t := slides.Timings{Durations: s.opts.Durations}
		for i, d := range t.Durations {
			if d <= 0 {
				return t, fmt.Errorf("slide %d duration must be positive, got %g", i+1, d)
			}
		}
		return t, nil
	}
	if s.opts.TimingsPath == "" {
		return slides.Timings{}, errors.New("slide durations required (--timings or --durations)")
	}
	return slides.LoadTimings(s.opts.TimingsPath)
}
