package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, path, exists, err := Load(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(dir, "missing.toml"), path)
	assert.Equal(t, "MP3", cfg.TTS.AudioEncoding)
	assert.Equal(t, 5000, cfg.TTS.MaxChunkBytes)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 175, cfg.HeyGen.PartSeconds)
	assert.True(t, filepath.IsAbs(cfg.Paths.DataDir))
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presenter.toml")
	content := `
[paths]
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "work")) + `"

[tts]
audio_encoding = "ogg_opus"
speaking_rate = 1.25

[llm]
provider = "Gemini"

[heygen]
concurrency = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "OGG_OPUS", cfg.TTS.AudioEncoding)
	assert.Equal(t, 1.25, cfg.TTS.SpeakingRate)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 1, cfg.HeyGen.Concurrency)
	assert.Equal(t, filepath.Join(dir, "work", "ledger.db"), cfg.LedgerPath())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"chunk too large": func(c *Config) { c.TTS.MaxChunkBytes = 6000 },
		"encoding":        func(c *Config) { c.TTS.AudioEncoding = "FLAC" },
		"provider":        func(c *Config) { c.LLM.Provider = "anthropic" },
		"threshold":       func(c *Config) { c.Keying.Threshold = 300 },
		"poll interval":   func(c *Config) { c.HeyGen.PollIntervalSeconds = 0 },
		"log format":      func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSample(filepath.Join(dir, "presenter.toml"))
	require.NoError(t, err)

	_, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = WriteSample(path)
	assert.Error(t, err)
}

func TestCredentialsDoNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.env")
	require.NoError(t, os.WriteFile(path, []byte("HEYGEN_API_KEY=from-file\nGOOGLE_TTS_API_KEY=tts-file\n"), 0600))

	t.Setenv(EnvHeyGenKey, "from-env")
	t.Setenv(EnvGoogleTTSKey, "")
	require.NoError(t, os.Unsetenv(EnvGoogleTTSKey))

	require.NoError(t, LoadCredentials(path))
	cfg := Default()
	cfg.ApplyCredentials()
	assert.Equal(t, "from-env", cfg.HeyGen.APIKey)
	assert.Equal(t, "tts-file", cfg.TTS.APIKey)

	assert.NoError(t, LoadCredentials(filepath.Join(dir, "absent.env")))
}
