package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/tts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	texts   []string
	voice   tts.Voice
	audio   tts.AudioConfig
	noAudio map[int]bool
	failAt  int
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, voice tts.Voice, audio tts.AudioConfig) ([]byte, error) {
	i := len(f.texts)
	f.texts = append(f.texts, text)
	f.voice, f.audio = voice, audio
	if f.failAt > 0 && i == f.failAt {
		return nil, errors.New("quota exceeded")
	}
	if f.noAudio[i] {
		return nil, tts.ErrNoAudio
	}
	return []byte("audio-" + text[:1]), nil
}

type fakeMerger struct {
	fakeProber
	inputs  []string
}

func (f *fakeMerger) ConcatDemuxer(_ context.Context, inputs []string, out string) error {
	f.inputs = append([]string(nil), inputs...)
	var data []byte
	for _, in := range inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	return os.WriteFile(out, data, 0644)
}

func narrationOpts(t *testing.T, text string) *config.NarrationOptions {
	dir := t.TempDir()
	return &config.NarrationOptions{
		InputPath:     writeFile(t, filepath.Join(dir, "script.txt"), text),
		OutputDir:     filepath.Join(dir, "data"),
		Encoding:      "MP3",
		LanguageCode:  "en-GB",
		VoiceName:     "en-GB-Standard-D",
		Gender:        "MALE",
		SpeakingRate:  1.0,
		MaxChunkBytes: 20,
	}
}

func TestNarratorSynthesizesAndMerges(t *testing.T) {
	opts := narrationOpts(t, "First one. Second one. ((Illustration: a chart)) Third.")
	synth := &fakeSynth{}
	media := &fakeMerger{fakeProber: fakeProber{"output.mp3": 42}}

	got, err := NewNarrator(opts, synth, media, nil).Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(opts.OutputDir, "output.mp3"), got.Path)
	assert.Equal(t, 42.0, got.Duration)
	assert.Equal(t, len(synth.texts), got.Chunks)
	assert.Empty(t, got.Skipped)
	for _, text := range synth.texts {
		assert.NotContains(t, text, "Illustration")
		assert.LessOrEqual(t, len(text), 20)
	}
	assert.Equal(t, "en-GB-Standard-D", synth.voice.Name)
	assert.Equal(t, "MP3", synth.audio.AudioEncoding)

	require.Len(t, media.inputs, got.Chunks)
	assert.Equal(t, "output_part_0.mp3", filepath.Base(media.inputs[0]))
	for _, part := range media.inputs {
		assert.NoFileExists(t, part)
	}
}

func TestNarratorSkipsChunksWithoutAudio(t *testing.T) {
	opts := narrationOpts(t, "Alpha beta gamma. Delta epsilon. Zeta eta theta.")
	synth := &fakeSynth{noAudio: map[int]bool{1: true}}
	media := &fakeMerger{fakeProber: fakeProber{"output.mp3": 3}}

	got, err := NewNarrator(opts, synth, media, nil).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.Skipped)
	assert.Len(t, media.inputs, got.Chunks-1)
	for _, in := range media.inputs {
		assert.False(t, strings.HasSuffix(in, "output_part_1.mp3"))
	}
}

func TestNarratorAbortsOnAPIError(t *testing.T) {
	opts := narrationOpts(t, "Alpha beta gamma. Delta epsilon. Zeta eta theta.")
	synth := &fakeSynth{failAt: 1}
	media := &fakeMerger{}

	_, err := NewNarrator(opts, synth, media, nil).Process(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Nil(t, media.inputs)
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, "output_part_0.mp3"))
}

func TestNarratorRejectsEmptyScript(t *testing.T) {
	opts := narrationOpts(t, "((Illustration: only a cue))")
	_, err := NewNarrator(opts, &fakeSynth{}, &fakeMerger{}, nil).Process(context.Background())
	assert.Error(t, err)
}

func TestNarratorFailsWhenNothingSynthesized(t *testing.T) {
	opts := narrationOpts(t, "Short.")
	synth := &fakeSynth{noAudio: map[int]bool{0: true}}
	_, err := NewNarrator(opts, synth, &fakeMerger{}, nil).Process(context.Background())
	assert.ErrorContains(t, err, "no audio chunks")
}
