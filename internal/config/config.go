package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the chaos plan generator.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	OpenSearch OpenSearchConfig
	Model      ModelConfig
	Prompt     PromptConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	CORSOrigins        []string
	APIKeyHashes       []string
	RateLimitPerMinute int
	WriteTimeout       time.Duration
}

// DatabaseConfig is optional. An empty URL disables run history.
type DatabaseConfig struct {
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty URL disables rate limiting.
type RedisConfig struct {
	URL string
}

// OpenSearchConfig supplies the connection used when a request omits one.
type OpenSearchConfig struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
}

type ModelConfig struct {
	Provider      string
	InvokeTimeout time.Duration // per blocking attempt; 0 disables
	Bedrock       BedrockConfig
	Gemini        GeminiConfig
}

type BedrockConfig struct {
	Region   string
	ModelID  string
	Endpoint string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type PromptConfig struct {
	MaxMessageBytes int
}

const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

var validProviders = map[string]bool{
	ProviderBedrock: true,
	ProviderGemini:  true,
}

// Load reads an optional .env file and then the process environment, and
// returns a validated Config. Variables already set in the environment win
// over the .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("CHAOSPLAN_PORT", 8000),
			Env:                envString("CHAOSPLAN_ENV", "development"),
			CORSOrigins:        envList("CORS_ORIGINS", []string{"*"}),
			APIKeyHashes:       envList("API_KEY_HASHES", nil),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),
			WriteTimeout:       envDuration("CHAOSPLAN_WRITE_TIMEOUT", 10*time.Minute),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		OpenSearch: OpenSearchConfig{
			Endpoint: os.Getenv("DEFAULT_OPENSEARCH_ENDPOINT"),
			Username: os.Getenv("DEFAULT_OPENSEARCH_USERNAME"),
			Password: os.Getenv("DEFAULT_OPENSEARCH_PASSWORD"),
			Timeout:  envDuration("OPENSEARCH_TIMEOUT", 30*time.Second),
		},
		Model: ModelConfig{
			Provider:      envString("MODEL_PROVIDER", ProviderBedrock),
			InvokeTimeout: envDurationSecs("MODEL_INVOKE_TIMEOUT_SECS", 300*time.Second),
			Bedrock: BedrockConfig{
				Region:   envString("AWS_REGION", "ap-south-1"),
				ModelID:  envString("BEDROCK_MODEL_ID", "global.anthropic.claude-sonnet-4-5-20250929-v1:0"),
				Endpoint: os.Getenv("BEDROCK_ENDPOINT"),
			},
			Gemini: GeminiConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-2.5-pro"),
				BaseURL: os.Getenv("GEMINI_BASE_URL"),
			},
		},
		Prompt: PromptConfig{
			MaxMessageBytes: envInt("PROMPT_MAX_MESSAGE_BYTES", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("CHAOSPLAN_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.Server.RateLimitPerMinute)
	}

	if c.OpenSearch.Endpoint != "" && !hasHTTPScheme(c.OpenSearch.Endpoint) {
		return fmt.Errorf("DEFAULT_OPENSEARCH_ENDPOINT must start with http:// or https://, got %q", c.OpenSearch.Endpoint)
	}

	if !validProviders[c.Model.Provider] {
		return fmt.Errorf("MODEL_PROVIDER must be one of bedrock, gemini; got %q", c.Model.Provider)
	}
	if c.Model.InvokeTimeout < 0 {
		return fmt.Errorf("MODEL_INVOKE_TIMEOUT_SECS must not be negative")
	}

	switch c.Model.Provider {
	case ProviderBedrock:
		if c.Model.Bedrock.Region == "" {
			return fmt.Errorf("AWS_REGION is required when MODEL_PROVIDER is bedrock")
		}
		if c.Model.Bedrock.Endpoint != "" && !hasHTTPScheme(c.Model.Bedrock.Endpoint) {
			return fmt.Errorf("BEDROCK_ENDPOINT must start with http:// or https://, got %q", c.Model.Bedrock.Endpoint)
		}
	case ProviderGemini:
		if c.Model.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when MODEL_PROVIDER is gemini")
		}
	}

	if c.Prompt.MaxMessageBytes < 0 {
		return fmt.Errorf("PROMPT_MAX_MESSAGE_BYTES must not be negative, got %d", c.Prompt.MaxMessageBytes)
	}

	return nil
}

// ModelID returns the model identifier of the configured provider.
func (m ModelConfig) ModelID() string {
	if m.Provider == ProviderGemini {
		return m.Gemini.Model
	}
	return m.Bedrock.ModelID
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
