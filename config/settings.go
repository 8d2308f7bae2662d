// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider credential lookup for the client's credential store

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/loomhq/loom/llm"
)

// Settings holds all application configuration.
type Settings struct {
	Model       string
	Temperature float32
	MaxTokens   int
	DBPath      string
}

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
	defaultDBPath      = "loom.db"

	defaultOllamaBaseURL = "http://localhost:11434"
)

// credentialEnv maps each provider to the environment variables that carry
// its credentials. Local deployments need a base URL instead of a key.
var credentialEnv = map[llm.Provider]struct {
	apiKeyEnv  string
	baseURLEnv string
}{
	llm.ProviderOpenAI:    {apiKeyEnv: "OPENAI_API_KEY", baseURLEnv: "OPENAI_BASE_URL"},
	llm.ProviderAnthropic: {apiKeyEnv: "ANTHROPIC_API_KEY", baseURLEnv: "ANTHROPIC_BASE_URL"},
	llm.ProviderGoogle:    {apiKeyEnv: "GEMINI_API_KEY", baseURLEnv: "GEMINI_BASE_URL"},
	llm.ProviderLocal:     {baseURLEnv: "OLLAMA_BASE_URL"},
}

// New loads settings from environment variables.
// Returns an error if a variable contains an invalid or out-of-range value.
func New() (Settings, error) {
	model := os.Getenv("LOOM_MODEL")
	if model == "" {
		model = defaultModel
	}

	temperature, err := getEnvFloat32("LOOM_TEMPERATURE", defaultTemperature)
	if err != nil {
		return Settings{}, err
	}
	if temperature < 0 || temperature > 2 {
		return Settings{}, fmt.Errorf("LOOM_TEMPERATURE must be between 0 and 2, got %g", temperature)
	}

	maxTokens, err := getEnvInt("LOOM_MAX_TOKENS", defaultMaxTokens)
	if err != nil {
		return Settings{}, err
	}
	if maxTokens <= 0 {
		return Settings{}, fmt.Errorf("LOOM_MAX_TOKENS must be positive, got %d", maxTokens)
	}

	dbPath := os.Getenv("LOOM_DB")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	return Settings{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		DBPath:      dbPath,
	}, nil
}

// MustNew loads settings and panics on invalid environment values.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// EnvCredentials resolves provider credentials from environment variables.
type EnvCredentials struct{}

var _ llm.CredentialStore = EnvCredentials{}

// Credential returns the credentials configured for provider. The local
// provider falls back to the standard Ollama address when no base URL is set.
func (EnvCredentials) Credential(provider llm.Provider) (llm.Credential, bool) {
	env, ok := credentialEnv[provider]
	if !ok {
		return llm.Credential{}, false
	}

	cred := llm.Credential{
		APIKey:  os.Getenv(env.apiKeyEnv),
		BaseURL: os.Getenv(env.baseURLEnv),
	}
	if provider == llm.ProviderLocal && cred.BaseURL == "" {
		cred.BaseURL = defaultOllamaBaseURL
	}
	if cred.APIKey == "" && cred.BaseURL == "" {
		return llm.Credential{}, false
	}
	return cred, true
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat32(key string, defaultVal float32) (float32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return float32(f), nil
}
