package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ListEntry is one line pair of a concat demuxer list.
type ListEntry struct {
	Path     string
	Duration float64 // seconds, zero omits the duration line
}

// WriteConcatList writes a concat demuxer list with absolute paths. When the
// entries carry durations the last file is repeated so its duration is honoured.
func WriteConcatList(listPath string, entries []ListEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("concat list needs at least one file")
	}
	var sb strings.Builder
	timed := false
	for _, e := range entries {
		abs, err := filepath.Abs(e.Path)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", e.Path)
		}
		fmt.Fprintf(&sb, "file '%s'\n", escapeListPath(abs))
		if e.Duration > 0 {
			timed = true
			fmt.Fprintf(&sb, "duration %.2f\n", e.Duration)
		}
	}
	if timed {
		abs, _ := filepath.Abs(entries[len(entries)-1].Path)
		fmt.Fprintf(&sb, "file '%s'\n", escapeListPath(abs))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return errors.Wrap(err, "write concat list")
	}
	return nil
}

func escapeListPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

func concatDemuxerStream(listPath, outputPath string, outputKwargs ffmpeg.KwArgs) *ffmpeg.Stream {
	return ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(outputPath, outputKwargs)
}

// ConcatDemuxer joins files with identical codecs without re-encoding
func (p *Processor) ConcatDemuxer(ctx context.Context, inputs []string, outputPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to concatenate")
	}
	for _, in := range inputs {
		if !fileExists(in) {
			return fmt.Errorf("input not found: %s", in)
		}
	}

	listPath := outputPath + ".list.txt"
	entries := make([]ListEntry, 0, len(inputs))
	for _, in := range inputs {
		entries = append(entries, ListEntry{Path: in})
	}
	if err := WriteConcatList(listPath, entries); err != nil {
		return err
	}
	defer os.Remove(listPath)

	p.logger.Info("concatenating without re-encode", zapInputs(inputs), zapOutput(outputPath))
	return p.run(ctx, concatDemuxerStream(listPath, outputPath, ffmpeg.KwArgs{"c": "copy"}), "concat demuxer")
}

func (p *Processor) concatFilterStream(inputs []string, outputPath string) *ffmpeg.Stream {
	streams := make([]*ffmpeg.Stream, 0, len(inputs)*2)
	for _, in := range inputs {
		input := ffmpeg.Input(in)
		streams = append(streams, input.Video(), input.Audio())
	}
	return p.CreateConcatFilter(streams, len(inputs)).
		Output(outputPath, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"c:a":     "aac",
			"pix_fmt": "yuv420p",
			"threads": GetOptimalThreadCount(),
		})
}

// ConcatFilter re-encodes and joins videos that may differ in codec settings.
// Every input must carry a video and an audio stream.
func (p *Processor) ConcatFilter(ctx context.Context, inputs []string, outputPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to concatenate")
	}
	for _, in := range inputs {
		if !fileExists(in) {
			return fmt.Errorf("input not found: %s", in)
		}
	}
	if len(inputs) == 1 {
		p.logger.Info("single input, re-encoding only", zapOutput(outputPath))
	}

	p.logger.Info("concatenating with re-encode", zapInputs(inputs), zapOutput(outputPath))
	return p.run(ctx, p.concatFilterStream(inputs, outputPath), "concat filter")
}
