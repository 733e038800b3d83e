package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/llm"
	"github.com/ZacxDev/video-presenter/internal/script"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	GeneratedScriptName = "output_gpt.txt"
	BreakdownName       = "script_breakdown.txt"
	SectionsDirName     = "script_sections"
	IllustrationsName   = "illustrations.json"
	CleanScriptName     = "clean_script.txt"
)

// Breakdown is the result of splitting a script into slide sections.
type Breakdown struct {
	ResponsePath string
	Sections     []string
	Skipped      int
}

// CleanedScript is the result of stripping illustration cues.
type CleanedScript struct {
	IllustrationsPath string
	ScriptPath        string
	Illustrations     []string
	AudioDuration     float64
}

// Scripter drives the LLM based script stages
type Scripter struct {
	opts   *config.ScriptOptions
	llm    llm.Completer
	prober MediaProber
	logger *zap.Logger
}

// NewScripter creates a new scripter. completer may be nil for Clean and
// prober may be nil when no audio length is needed.
func NewScripter(opts *config.ScriptOptions, completer llm.Completer, prober MediaProber, logger *zap.Logger) *Scripter {
	return &Scripter{
		opts:   opts,
		llm:    completer,
		prober: prober,
		logger: stageLogger(logger, "script"),
	}
}

// Generate sends the instruction file to the model and saves the reply.
func (s *Scripter) Generate(ctx context.Context) (string, error) {
	instructions, err := s.readInput()
	if err != nil {
		return "", err
	}
	reply, err := s.complete(ctx, instructions)
	if err != nil {
		return "", err
	}
	out := filepath.Join(s.opts.OutputDir, GeneratedScriptName)
	if err := writeText(out, reply); err != nil {
		return "", err
	}
	s.logger.Info("script saved", zap.String("path", out), zap.Int("bytes", len(reply)))
	return out, nil
}

// Breakdown asks the model to split a script into outline sections and
// writes each section body to its own file.
func (s *Scripter) Breakdown(ctx context.Context) (*Breakdown, error) {
	text, err := s.readInput()
	if err != nil {
		return nil, err
	}
	outline, err := s.outline()
	if err != nil {
		return nil, err
	}

	reply, err := s.complete(ctx, script.BreakdownPrompt(text, outline))
	if err != nil {
		return nil, err
	}
	result := &Breakdown{ResponsePath: filepath.Join(s.opts.OutputDir, BreakdownName)}
	if err := writeText(result.ResponsePath, reply); err != nil {
		return nil, err
	}

	sections, skipped := script.ParseSections(reply)
	for _, block := range skipped {
		s.logger.Warn("could not parse section", zap.String("section", firstLine(block)))
	}
	result.Skipped = len(skipped)

	dir := filepath.Join(s.opts.OutputDir, SectionsDirName)
	for _, section := range sections {
		path := filepath.Join(dir, section.FileName())
		if err := writeText(path, section.Body); err != nil {
			return nil, err
		}
		result.Sections = append(result.Sections, path)
		s.logger.Info("section saved", zap.String("number", section.Number), zap.String("title", section.Title))
	}
	return result, nil
}

// Clean extracts illustration cues into JSON and writes the spoken script.
func (s *Scripter) Clean() (*CleanedScript, error) {
	text, err := s.readInput()
	if err != nil {
		return nil, err
	}
	cues, clean := script.ExtractIllustrations(text)
	if cues == nil {
		cues = []string{}
	}

	result := &CleanedScript{
		IllustrationsPath: filepath.Join(s.opts.OutputDir, IllustrationsName),
		ScriptPath:        filepath.Join(s.opts.OutputDir, CleanScriptName),
		Illustrations:     cues,
	}
	payload, err := json.MarshalIndent(map[string][]string{"illustrations": cues}, "", "    ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := writeText(result.IllustrationsPath, string(payload)); err != nil {
		return nil, err
	}
	if err := writeText(result.ScriptPath, clean); err != nil {
		return nil, err
	}
	s.logger.Info("script cleaned", zap.Int("illustrations", len(cues)), zap.String("script", result.ScriptPath))

	if s.opts.AudioPath != "" && s.prober != nil {
		duration, err := s.prober.GetMediaDuration(s.opts.AudioPath)
		if err != nil {
			return nil, errors.Wrapf(err, "probe %s", s.opts.AudioPath)
		}
		result.AudioDuration = duration
		s.logger.Info("narration length", zap.Float64("seconds", duration))
	}
	return result, nil
}

func (s *Scripter) readInput() (string, error) {
	data, err := os.ReadFile(s.opts.InputPath)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", s.opts.InputPath)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.Wrapf(script.ErrEmptyText, "%s", s.opts.InputPath)
	}
	return string(data), nil
}

func (s *Scripter) complete(ctx context.Context, prompt string) (string, error) {
	if s.llm == nil {
		return "", errors.New("no language model configured")
	}
	s.logger.Info("sending prompt", zap.String("model", s.llm.Name()), zap.Int("bytes", len(prompt)))
	reply, err := s.llm.Complete(ctx, s.opts.SystemPrompt, prompt)
	if err != nil {
		return "", errors.Wrap(err, s.llm.Name())
	}
	return reply, nil
}

func (s *Scripter) outline() ([]script.OutlineEntry, error) {
	if s.opts.OutlinePath == "" {
		return script.DefaultOutline, nil
	}
	data, err := os.ReadFile(s.opts.OutlinePath)
	if err != nil {
		return nil, errors.Wrap(err, "read outline")
	}
	var outline []script.OutlineEntry
	if err := yaml.Unmarshal(data, &outline); err != nil {
		return nil, errors.Wrapf(err, "parse outline %s", s.opts.OutlinePath)
	}
	if len(outline) == 0 {
		return nil, errors.Errorf("outline %s has no sections", s.opts.OutlinePath)
	}
	return outline, nil
}

func writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	return errors.Wrapf(os.WriteFile(path, []byte(text), 0644), "write %s", path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
