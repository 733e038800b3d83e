package slides

import (
	"fmt"
	"os"

	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Timings is the on-disk slide timing manifest.
//
//	durations: [23, 32, 20]
type Timings struct {
	Durations []float64 `yaml:"durations"`
}

// LoadTimings reads a YAML timing manifest.
func LoadTimings(path string) (Timings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Timings{}, errors.Wrap(err, "read timings")
	}
	var t Timings
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Timings{}, errors.Wrapf(err, "parse timings %s", path)
	}
	for i, d := range t.Durations {
		if d <= 0 {
			return Timings{}, fmt.Errorf("slide %d duration must be positive, got %g", i+1, d)
		}
	}
	return t, nil
}

// Total returns the summed duration in seconds.
func (t Timings) Total() float64 {
	var sum float64
	for _, d := range t.Durations {
		sum += d
	}
	return sum
}

// ConcatEntries pairs images with durations; the counts must match.
func (t Timings) ConcatEntries(images []string) ([]ffmpeg.ListEntry, error) {
	if len(images) != len(t.Durations) {
		return nil, fmt.Errorf("found %d slides but %d durations", len(images), len(t.Durations))
	}
	entries := make([]ffmpeg.ListEntry, len(images))
	for i, img := range images {
		entries[i] = ffmpeg.ListEntry{Path: img, Duration: t.Durations[i]}
	}
	return entries, nil
}
