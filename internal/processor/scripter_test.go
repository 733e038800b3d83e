package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestScripterGenerate(t *testing.T) {
	dir := t.TempDir()
	opts := &config.ScriptOptions{
		InputPath:    writeFile(t, filepath.Join(dir, "instructions.txt"), "Write a lecture on attention."),
		OutputDir:    filepath.Join(dir, "out"),
		SystemPrompt: "You are a lecturer.",
	}
	llm := &fakeCompleter{reply: "Welcome to the lecture."}

	path, err := NewScripter(opts, llm, nil, nil).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, GeneratedScriptName), path)
	assert.Equal(t, "You are a lecturer.", llm.system)
	assert.Equal(t, "Write a lecture on attention.", llm.user)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Welcome to the lecture.", string(data))
}

func TestScripterGenerateErrors(t *testing.T) {
	dir := t.TempDir()
	empty := &config.ScriptOptions{InputPath: writeFile(t, filepath.Join(dir, "empty.txt"), "  \n"), OutputDir: dir}
	_, err := NewScripter(empty, &fakeCompleter{}, nil, nil).Generate(context.Background())
	assert.Error(t, err)

	opts := &config.ScriptOptions{InputPath: writeFile(t, filepath.Join(dir, "in.txt"), "prompt"), OutputDir: dir}
	_, err = NewScripter(opts, nil, nil, nil).Generate(context.Background())
	assert.ErrorContains(t, err, "no language model")

	_, err = NewScripter(opts, &fakeCompleter{err: errors.New("rate limited")}, nil, nil).Generate(context.Background())
	assert.ErrorContains(t, err, "rate limited")
	assert.NoFileExists(t, filepath.Join(dir, GeneratedScriptName))
}

func TestScripterBreakdown(t *testing.T) {
	dir := t.TempDir()
	outline := "- title: Opening\n  slides: 1\n- title: Closing\n  slides: 2\n"
	opts := &config.ScriptOptions{
		InputPath:   writeFile(t, filepath.Join(dir, "script.txt"), "Hello and goodbye."),
		OutputDir:   filepath.Join(dir, "out"),
		OutlinePath: writeFile(t, filepath.Join(dir, "outline.yaml"), outline),
	}
	reply := "Section 1: Opening\nHello.\nSection 2: Closing\nGoodbye.\nSection 3: trailing"
	llm := &fakeCompleter{reply: reply}

	got, err := NewScripter(opts, llm, nil, nil).Breakdown(context.Background())
	require.NoError(t, err)

	assert.Contains(t, llm.user, "Opening - 1 slide")
	assert.Contains(t, llm.user, "Closing - 2 slides")
	assert.Contains(t, llm.user, "Hello and goodbye.")
	assert.Equal(t, 1, got.Skipped)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, filepath.Join(opts.OutputDir, SectionsDirName, "section_1.txt"), got.Sections[0])

	body, err := os.ReadFile(got.Sections[1])
	require.NoError(t, err)
	assert.Equal(t, "Goodbye.", string(body))

	saved, err := os.ReadFile(got.ResponsePath)
	require.NoError(t, err)
	assert.Equal(t, reply, string(saved))
}

func TestScripterBreakdownRejectsEmptyOutline(t *testing.T) {
	dir := t.TempDir()
	opts := &config.ScriptOptions{
		InputPath:   writeFile(t, filepath.Join(dir, "script.txt"), "text"),
		OutputDir:   dir,
		OutlinePath: writeFile(t, filepath.Join(dir, "outline.yaml"), "[]\n"),
	}
	_, err := NewScripter(opts, &fakeCompleter{}, nil, nil).Breakdown(context.Background())
	assert.ErrorContains(t, err, "has no sections")
}

func TestScripterClean(t *testing.T) {
	dir := t.TempDir()
	text := "Intro. (( Illustration: neuron diagram )) Body. (( Illustration: loss curve )) End."
	opts := &config.ScriptOptions{
		InputPath: writeFile(t, filepath.Join(dir, "script.txt"), text),
		OutputDir: filepath.Join(dir, "out"),
		AudioPath: writeFile(t, filepath.Join(dir, "output.mp3"), "ID3"),
	}

	got, err := NewScripter(opts, nil, fakeProber{"output.mp3": 61.5}, nil).Clean()
	require.NoError(t, err)
	assert.Equal(t, []string{"neuron diagram", "loss curve"}, got.Illustrations)
	assert.Equal(t, 61.5, got.AudioDuration)

	raw, err := os.ReadFile(got.IllustrationsPath)
	require.NoError(t, err)
	var payload struct {
		Illustrations []string `json:"illustrations"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, got.Illustrations, payload.Illustrations)

	clean, err := os.ReadFile(got.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, "Intro.  Body.  End.", string(clean))
}

func TestScripterCleanWithoutCues(t *testing.T) {
	dir := t.TempDir()
	opts := &config.ScriptOptions{
		InputPath: writeFile(t, filepath.Join(dir, "script.txt"), "Plain text."),
		OutputDir: dir,
	}
	got, err := NewScripter(opts, nil, nil, nil).Clean()
	require.NoError(t, err)
	assert.Empty(t, got.Illustrations)

	raw, err := os.ReadFile(got.IllustrationsPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"illustrations": []}`, string(raw))
}
