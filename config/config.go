package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cra88y/answerstream/provider"
)

// Config holds all configuration for the answer gateway. It is resolved once
// at startup and treated as read-only for the process lifetime.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Answer AnswerConfig `mapstructure:"answer"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
}

// LLMConfig describes the upstream provider endpoint.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, openrouter, ollama, localai, lmstudio, gemini, azure, huggingface
	URL         string        `mapstructure:"url"`      // base URL override; empty uses the provider preset
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"key"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// AnswerConfig controls grounding context construction and answer style.
type AnswerConfig struct {
	DeepCount    int      `mapstructure:"deep_count"`
	ShallowCount int      `mapstructure:"shallow_count"`
	Tabs         []string `mapstructure:"tabs"`
	Interactive  bool     `mapstructure:"interactive"`
}

// AuthConfig contains the stream-token signing settings.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Load resolves configuration from an optional config file plus environment
// variables. The legacy LLM_* environment names take effect alongside the
// ANSWERD_* prefixed ones.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("server.address", ":8890")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.idle_timeout", 30*time.Second)
	v.SetDefault("answer.deep_count", 5)
	v.SetDefault("answer.shallow_count", 0)
	v.SetDefault("answer.tabs", []string{"general", "science", "it", "news"})
	v.SetDefault("answer.interactive", true)
	v.SetDefault("auth.token_ttl", 90*time.Second)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ANSWERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment names used by original plugin deployments.
	_ = v.BindEnv("llm.provider", "ANSWERD_LLM_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("llm.url", "ANSWERD_LLM_URL", "LLM_URL")
	_ = v.BindEnv("llm.model", "ANSWERD_LLM_MODEL", "LLM_MODEL")
	_ = v.BindEnv("llm.key", "ANSWERD_LLM_KEY", "LLM_KEY")
	_ = v.BindEnv("llm.max_tokens", "ANSWERD_LLM_MAX_TOKENS", "LLM_MAX_TOKENS")
	_ = v.BindEnv("llm.temperature", "ANSWERD_LLM_TEMPERATURE", "LLM_TEMPERATURE")
	_ = v.BindEnv("answer.deep_count", "ANSWERD_ANSWER_DEEP_COUNT", "LLM_CONTEXT_COUNT")
	_ = v.BindEnv("auth.secret", "ANSWERD_AUTH_SECRET", "SXNG_LLM_SECRET")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize applies provider presets, URL-based detection and derived
// defaults, then validates the result.
func (c *Config) normalize() error {
	kind := provider.Kind(strings.ToLower(strings.TrimSpace(c.LLM.Provider)))
	if kind == "" && c.LLM.URL != "" {
		kind = provider.Detect(c.LLM.URL)
	}
	if kind == "" {
		return fmt.Errorf("no LLM provider configured (llm.provider or llm.url)")
	}
	if !provider.Known(kind) {
		kind = provider.KindOpenAI
	}
	c.LLM.Provider = string(kind)

	preset := provider.Presets[kind]
	if c.LLM.Model == "" {
		c.LLM.Model = preset.Model
	}
	if c.LLM.URL == "" {
		c.LLM.URL = preset.URL
	}
	c.LLM.URL = strings.Replace(c.LLM.URL, "{model}", c.LLM.Model, 1)
	if c.LLM.URL == "" {
		return fmt.Errorf("provider %s requires an explicit llm.url", kind)
	}
	if !strings.HasPrefix(c.LLM.URL, "http://") && !strings.HasPrefix(c.LLM.URL, "https://") {
		c.LLM.URL = "https://" + c.LLM.URL
	}

	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" && provider.Local(kind) {
		c.LLM.APIKey = "none"
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured (llm.key)")
	}

	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 500
	}
	if c.Answer.DeepCount < 0 {
		c.Answer.DeepCount = 0
	}
	if c.Answer.ShallowCount < 0 {
		c.Answer.ShallowCount = 0
	}

	if c.Auth.Secret == "" {
		// Same fallback as the original deployments: derive from the API key.
		sum := sha256.Sum256([]byte(c.LLM.APIKey))
		c.Auth.Secret = hex.EncodeToString(sum[:])
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 90 * time.Second
	}
	return nil
}

// ProviderSettings projects the resolved LLM section into the settings the
// provider layer consumes.
func (c *Config) ProviderSettings() provider.Settings {
	return provider.Settings{
		Kind:        provider.Kind(c.LLM.Provider),
		BaseURL:     c.LLM.URL,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		IdleTimeout: c.LLM.IdleTimeout,
	}
}

// TabAllowed reports whether any of the request's tabs is whitelisted.
func (c *Config) TabAllowed(tabs []string) bool {
	if len(c.Answer.Tabs) == 0 {
		return true
	}
	for _, t := range tabs {
		for _, allowed := range c.Answer.Tabs {
			if t == allowed {
				return true
			}
		}
	}
	return false
}
