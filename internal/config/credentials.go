package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	EnvGoogleTTSKey   = "GOOGLE_TTS_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvGeminiKey      = "GEMINI_API_KEY"
	EnvHeyGenKey      = "HEYGEN_API_KEY"
	EnvGoogleAppCreds = "GOOGLE_APPLICATION_CREDENTIALS"
)

// CredentialKeys lists the environment variables read from credentials.env.
var CredentialKeys = []string{
	EnvGoogleTTSKey,
	EnvOpenAIKey,
	EnvGeminiKey,
	EnvHeyGenKey,
	EnvGoogleAppCreds,
}

// LoadCredentials loads the env file into the process environment. Variables
// already set are left untouched. A missing file is not an error.
func LoadCredentials(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat credentials file")
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load credentials from %s", path)
	}
	return nil
}

// ApplyCredentials fills empty API keys from the environment.
func (c *Config) ApplyCredentials() {
	c.TTS.APIKey = firstSet(c.TTS.APIKey, os.Getenv(EnvGoogleTTSKey))
	c.HeyGen.APIKey = firstSet(c.HeyGen.APIKey, os.Getenv(EnvHeyGenKey))
	c.Storage.CredentialsFile = firstSet(c.Storage.CredentialsFile, os.Getenv(EnvGoogleAppCreds))
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = os.Getenv(EnvGeminiKey)
		default:
			c.LLM.APIKey = os.Getenv(EnvOpenAIKey)
		}
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
