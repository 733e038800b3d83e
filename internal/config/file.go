package config

import (
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directory configuration.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	CredentialsFile string `toml:"credentials_file"`
	LedgerPath      string `toml:"ledger_path"`
	UploadDir       string `toml:"upload_dir"`
}

// TTS contains Google Text-to-Speech settings.
type TTS struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	LanguageCode   string  `toml:"language_code"`
	Voice          string  `toml:"voice"`
	Gender         string  `toml:"gender"`
	SpeakingRate   float64 `toml:"speaking_rate"`
	AudioEncoding  string  `toml:"audio_encoding"`
	MaxChunkBytes  int     `toml:"max_chunk_bytes"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// LLM contains chat completion settings.
type LLM struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	SystemPrompt   string  `toml:"system_prompt"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// HeyGen contains avatar video API settings.
type HeyGen struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	AvatarID            string `toml:"avatar_id"`
	AvatarStyle         string `toml:"avatar_style"`
	BackgroundColor     string `toml:"background_color"`
	Width               int    `toml:"width"`
	Height              int    `toml:"height"`
	PartSeconds         int    `toml:"part_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollTimeoutMinutes  int    `toml:"poll_timeout_minutes"`
	Concurrency         int    `toml:"concurrency"`
}

// Storage contains Google Cloud Storage settings.
type Storage struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	CredentialsFile string `toml:"credentials_file"`
	SignedURLs      bool   `toml:"signed_urls"`
	SignedURLTTLMin int    `toml:"signed_url_ttl_minutes"`
}

// Keying contains background removal defaults.
type Keying struct {
	Color     string   `toml:"color"`
	Threshold int      `toml:"threshold"`
	Profiles  []string `toml:"profiles"`
}

// Slides contains slide rendering defaults.
type Slides struct {
	FPS int `toml:"fps"`
	DPI int `toml:"dpi"`
}

// Assemble contains the avatar overlay layout.
type Assemble struct {
	AvatarWidth  int `toml:"avatar_width"`
	AvatarHeight int `toml:"avatar_height"`
	X            int `toml:"x"`
	Y            int `toml:"y"`
}

// Logging contains logger settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root presenter configuration.
type Config struct {
	Paths    Paths    `toml:"paths"`
	TTS      TTS      `toml:"tts"`
	LLM      LLM      `toml:"llm"`
	HeyGen   HeyGen   `toml:"heygen"`
	Storage  Storage  `toml:"storage"`
	Keying   Keying   `toml:"keying"`
	Slides   Slides   `toml:"slides"`
	Assemble Assemble `toml:"assemble"`
	Logging  Logging  `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:         "data",
			CredentialsFile: "credentials.env",
			UploadDir:       "uploads",
		},
		TTS: TTS{
			BaseURL:        "https://texttospeech.googleapis.com/v1/text:synthesize",
			LanguageCode:   "en-GB",
			Voice:          "en-GB-Standard-D",
			Gender:         "MALE",
			SpeakingRate:   1.0,
			AudioEncoding:  "MP3",
			MaxChunkBytes:  MaxTTSChunkBytes,
			TimeoutSeconds: 60,
		},
		LLM: LLM{
			Provider:       "openai",
			Model:          "gpt-4o",
			Temperature:    0.7,
			SystemPrompt:   "Follow the user's instructions carefully.",
			TimeoutSeconds: 120,
		},
		HeyGen: HeyGen{
			BaseURL:             "https://api.heygen.com",
			AvatarID:            "Dexter_Doctor_Standing2_public",
			AvatarStyle:         "normal",
			BackgroundColor:     "#000000",
			Width:               OutputWidth,
			Height:              OutputHeight,
			PartSeconds:         AvatarPartSeconds,
			PollIntervalSeconds: int(DefaultPollInterval.Seconds()),
			Concurrency:         2,
		},
		Storage: Storage{
			SignedURLs:      true,
			SignedURLTTLMin: int(SignedURLTTL.Minutes()),
		},
		Keying: Keying{
			Color:     DefaultKeyColor,
			Threshold: DefaultThreshold,
			Profiles:  []string{"prores", "webm-alpha"},
		},
		Slides: Slides{
			FPS: SlideFPS,
			DPI: SlideDPI,
		},
		Assemble: Assemble{
			AvatarWidth:  AvatarOverlayWidth,
			AvatarHeight: AvatarOverlayHeight,
			X:            AvatarOverlayX,
			Y:            AvatarOverlayY,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// SampleConfig returns the commented sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// Load reads the configuration from path, or from the default locations when
// path is empty. It returns the resolved path and whether a file was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, errors.Wrap(err, "open config")
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, errors.Wrap(err, "parse config")
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the sample configuration to path, refusing to overwrite.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return "", errors.Wrap(err, "create config directory")
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0644); err != nil {
		return "", errors.Wrap(err, "write sample config")
	}
	return expanded, nil
}

// Validate reports configuration values that would fail later at runtime.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.TTS.MaxChunkBytes <= 0 || c.TTS.MaxChunkBytes > MaxTTSChunkBytes {
		return fmt.Errorf("tts.max_chunk_bytes must be between 1 and %d", MaxTTSChunkBytes)
	}
	switch c.TTS.AudioEncoding {
	case "MP3", "OGG_OPUS", "LINEAR16":
	default:
		return fmt.Errorf("tts.audio_encoding %q is not supported", c.TTS.AudioEncoding)
	}
	if c.TTS.SpeakingRate < 0.25 || c.TTS.SpeakingRate > 4.0 {
		return errors.New("tts.speaking_rate must be between 0.25 and 4.0")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider %q is not supported (openai, gemini)", c.LLM.Provider)
	}
	if c.HeyGen.PartSeconds <= 0 {
		return errors.New("heygen.part_seconds must be positive")
	}
	if c.HeyGen.PollIntervalSeconds <= 0 {
		return errors.New("heygen.poll_interval_seconds must be positive")
	}
	if c.HeyGen.Width <= 0 || c.HeyGen.Height <= 0 {
		return errors.New("heygen.width and heygen.height must be positive")
	}
	if c.Keying.Threshold < 0 || c.Keying.Threshold > 255 {
		return errors.New("keying.threshold must be between 0 and 255")
	}
	if c.Slides.FPS <= 0 {
		return errors.New("slides.fps must be positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	return nil
}

// LedgerPath returns the sqlite ledger location.
func (c *Config) LedgerPath() string {
	if c.Paths.LedgerPath != "" {
		return c.Paths.LedgerPath
	}
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// PollInterval returns the HeyGen status polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.HeyGen.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the overall render wait limit, zero for none.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.HeyGen.PollTimeoutMinutes) * time.Minute
}

// SignedURLTTL returns how long signed audio URLs stay valid.
func (c *Config) SignedURLTTL() time.Duration {
	if c.Storage.SignedURLTTLMin <= 0 {
		return SignedURLTTL
	}
	return time.Duration(c.Storage.SignedURLTTLMin) * time.Minute
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.CredentialsFile, err = expandPath(c.Paths.CredentialsFile); err != nil {
		return err
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return err
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return err
	}
	if c.Storage.CredentialsFile, err = expandPath(c.Storage.CredentialsFile); err != nil {
		return err
	}
	c.TTS.AudioEncoding = strings.ToUpper(strings.TrimSpace(c.TTS.AudioEncoding))
	c.TTS.Gender = strings.ToUpper(strings.TrimSpace(c.TTS.Gender))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	if c.HeyGen.Concurrency <= 0 {
		c.HeyGen.Concurrency = 1
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, errors.Wrap(err, "stat config")
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/presenter/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("presenter.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home directory")
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.Wrapf(err, "resolve absolute path for %q", cleaned)
	}
	return absolute, nil
}
