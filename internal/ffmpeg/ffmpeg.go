package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Processor wraps FFmpeg functionality
type Processor struct {
	logger *zap.Logger
}

// NewProcessor creates a new FFmpeg processor
func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger: logger.With(zap.String("component", "ffmpeg")),
	}
}

// command turns a compiled stream into a cancellable ffmpeg invocation.
func (p *Processor) command(ctx context.Context, stream *ffmpeg.Stream) *exec.Cmd {
	compiled := stream.OverWriteOutput().Compile()
	cmd := exec.CommandContext(ctx, compiled.Args[0], compiled.Args[1:]...)
	p.logger.Debug("running ffmpeg", zap.Strings("args", compiled.Args[1:]))
	return cmd
}

// run executes the stream and folds the tail of ffmpeg's stderr into the error.
func (p *Processor) run(ctx context.Context, stream *ffmpeg.Stream, op string) error {
	cmd := p.command(ctx, stream)
	var stderr bytes.Buffer
	cmd.Stderr = p.stderrSink(&stderr)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), op)
		}
		return errors.Wrapf(err, "%s: %s", op, stderrTail(stderr.String()))
	}
	return nil
}

// stderrSink streams ffmpeg progress to the terminal at debug level.
func (p *Processor) stderrSink(buf *bytes.Buffer) io.Writer {
	if p.logger.Core().Enabled(zapcore.DebugLevel) {
		return io.MultiWriter(buf, os.Stderr)
	}
	return buf
}

func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

// GetOptimalThreadCount leaves a quarter of the cores free
func GetOptimalThreadCount() int {
	cpuCount := runtime.NumCPU()
	return int(math.Max(1, float64(cpuCount)*0.75))
}

// EnsureExtension swaps any known media extension for extension
func EnsureExtension(filename, extension string) string {
	extensions := []string{".mp4", ".webm", ".mkv", ".avi", ".mov"}
	for _, ext := range extensions {
		filename = strings.TrimSuffix(filename, ext)
	}
	return filename + extension
}

// CreateConcatFilter creates a filter for concatenating interleaved video and
// audio streams. The audio pad is left unlabeled and ffmpeg maps it to the
// first output.
func (p *Processor) CreateConcatFilter(inputs []*ffmpeg.Stream, numSegments int) *ffmpeg.Stream {
	return ffmpeg.Filter(inputs, "concat", ffmpeg.Args{
		fmt.Sprintf("n=%d", numSegments),
		"v=1",
		"a=1",
	})
}

// CreateOverlayFilter creates a filter for overlaying one video on top of another.
// extra options such as enable= are appended as given.
func (p *Processor) CreateOverlayFilter(main, overlay *ffmpeg.Stream, x, y string, extra ...string) *ffmpeg.Stream {
	args := ffmpeg.Args{
		fmt.Sprintf("x=%s", x),
		fmt.Sprintf("y=%s", y),
	}
	return ffmpeg.Filter([]*ffmpeg.Stream{main, overlay}, "overlay", append(args, extra...))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
