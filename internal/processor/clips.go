package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SourceFormat prefers an mp4/m4a pair so segments can be cut without
// re-encoding.
const SourceFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"

// VideoFetcher downloads a remote video to a local path.
type VideoFetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// ClipMedia cuts and joins stream-copied segments.
type ClipMedia interface {
	CutSegment(ctx context.Context, inputPath, outputPath string, start, duration float64) error
	ConcatDemuxer(ctx context.Context, inputs []string, outputPath string) error
}

// Segment is a start offset and length in seconds.
type Segment struct {
	Start    float64
	Duration float64
}

// ParseSegment reads "start+duration", e.g. "4m18s+24s" or "4:18+24".
func ParseSegment(value string) (Segment, error) {
	startText, durText, ok := strings.Cut(value, "+")
	if !ok {
		return Segment{}, fmt.Errorf("segment %q must be start+duration", value)
	}
	start, err := parseTimestamp(startText)
	if err != nil {
		return Segment{}, err
	}
	durText = strings.TrimSpace(durText)
	if durText != "" && !strings.ContainsAny(durText, ":hms") {
		durText += "s"
	}
	duration, err := parseTimestamp(durText)
	if err != nil {
		return Segment{}, err
	}
	if duration <= 0 {
		return Segment{}, fmt.Errorf("segment %q has no duration", value)
	}
	return Segment{Start: start, Duration: duration}, nil
}

// ClipExtractor cuts reference segments out of a source video
type ClipExtractor struct {
	opts    *config.ClipOptions
	fetcher VideoFetcher
	media   ClipMedia
	logger  *zap.Logger
}

// NewClipExtractor creates a new clip extractor. fetcher may be nil when the
// source is local.
func NewClipExtractor(opts *config.ClipOptions, fetcher VideoFetcher, media ClipMedia, logger *zap.Logger) *ClipExtractor {
	return &ClipExtractor{
		opts:    opts,
		fetcher: fetcher,
		media:   media,
		logger:  stageLogger(logger, "clips"),
	}
}

// Process cuts every segment and merges them into the output video. A source
// downloaded by this run is removed afterwards.
func (c *ClipExtractor) Process(ctx context.Context) (string, error) {
	if len(c.opts.Segments) == 0 {
		return "", errors.New("at least one segment is required")
	}
	segments := make([]Segment, 0, len(c.opts.Segments))
	for _, s := range c.opts.Segments {
		seg, err := ParseSegment(s)
		if err != nil {
			return "", err
		}
		segments = append(segments, seg)
	}

	outputPath, err := ensureOutputPath(c.opts.OutputPath, ".mp4")
	if err != nil {
		return "", err
	}
	outputDir := filepath.Dir(outputPath)

	source, downloaded, err := c.source(ctx, outputPath)
	if err != nil {
		return "", err
	}
	if downloaded {
		defer func() {
			if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("failed to remove downloaded source", zap.String("path", source), zap.Error(err))
			}
		}()
	}

	tempDir, err := os.MkdirTemp(outputDir, config.ClipTempPrefix)
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(tempDir)

	clips := make([]string, 0, len(segments))
	for i, seg := range segments {
		clip := filepath.Join(tempDir, fmt.Sprintf("clip_%d.mp4", i+1))
		c.logger.Info("extracting segment",
			zap.Int("segment", i+1),
			zap.Float64("start", seg.Start),
			zap.Float64("duration", seg.Duration))
		if err := c.media.CutSegment(ctx, source, clip, seg.Start, seg.Duration); err != nil {
			return "", errors.Wrapf(err, "segment %d", i+1)
		}
		if err := requireFile(clip); err != nil {
			return "", errors.Wrapf(err, "clip %d was not created", i+1)
		}
		clips = append(clips, clip)
	}

	if err := c.media.ConcatDemuxer(ctx, clips, outputPath); err != nil {
		return "", errors.Wrap(err, "merge clips")
	}
	c.logger.Info("clips merged", zap.String("path", outputPath), zap.Int("clips", len(clips)))
	return outputPath, nil
}

// source returns a local copy of the video, downloading it when needed.
func (c *ClipExtractor) source(ctx context.Context, outputPath string) (string, bool, error) {
	source := c.opts.SourcePath
	if source == "" {
		source = filepath.Join(filepath.Dir(outputPath), "source_"+filepath.Base(outputPath))
	}
	// yt-dlp may pick a webm stream when no mp4 pair exists.
	webm := strings.TrimSuffix(source, filepath.Ext(source)) + ".webm"
	if _, err := os.Stat(source); err != nil {
		if _, werr := os.Stat(webm); werr == nil && webm != source {
			c.logger.Info("renaming webm source", zap.String("from", webm), zap.String("to", source))
			return source, false, errors.WithStack(os.Rename(webm, source))
		}
	}
	if _, err := os.Stat(source); err == nil {
		return source, false, nil
	}

	if c.opts.URL == "" {
		return "", false, fmt.Errorf("source video %s not found and no URL given", source)
	}
	if c.fetcher == nil {
		return "", false, errors.New("no downloader configured")
	}
	c.logger.Info("downloading source", zap.String("url", c.opts.URL), zap.String("path", source))
	if err := c.fetcher.Fetch(ctx, c.opts.URL, source); err != nil {
		return "", false, errors.Wrap(err, "download source video")
	}
	if _, err := os.Stat(source); err != nil {
		if _, werr := os.Stat(webm); werr == nil {
			if err := os.Rename(webm, source); err != nil {
				return "", false, errors.WithStack(err)
			}
		} else {
			return "", false, fmt.Errorf("video download failed: %s was not written", source)
		}
	}
	return source, true, nil
}

// YTDLP fetches videos with the yt-dlp binary.
type YTDLP struct {
	Format string
	logger *zap.Logger
}

// NewYTDLP returns a fetcher using SourceFormat.
func NewYTDLP(logger *zap.Logger) *YTDLP {
	return &YTDLP{Format: SourceFormat, logger: stageLogger(logger, "yt-dlp")}
}

// Fetch downloads url to dst.
func (y *YTDLP) Fetch(ctx context.Context, url, dst string) error {
	dl := ytdlp.New().
		Format(y.Format).
		NoPlaylist().
		ForceOverwrites().
		Output(dst)

	dl.ProgressFunc(2*time.Second, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes > 0 {
			y.logger.Info("downloading",
				zap.String("done", humanize.Bytes(uint64(update.DownloadedBytes))),
				zap.String("total", humanize.Bytes(uint64(update.TotalBytes))))
		}
	})

	if _, err := dl.Run(ctx, url); err != nil {
		return errors.Wrap(err, "yt-dlp")
	}
	return nil
}
