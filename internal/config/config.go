package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the InboxLens server and pipeline command.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Source   SourceConfig
	AI       AIConfig
	Batch    BatchConfig
	Pipeline PipelineConfig
	Tenant   TenantConfig
	Secrets  SecretsConfig
}

type ServerConfig struct {
	Port            int    `env:"INBOXLENS_PORT"     env-default:"8080"`
	Env             string `env:"INBOXLENS_ENV"      env-default:"development"`
	RateLimitPerMin int    `env:"RATE_LIMIT_PER_MIN" env-default:"60"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS"    env-default:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" env-default:"5m"`
	MigrationsDir   string        `env:"DATABASE_MIGRATIONS_DIR"    env-default:"migrations"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// SourceConfig describes the external messaging API that items are synced from.
type SourceConfig struct {
	BaseURL       string        `env:"SOURCE_BASE_URL"`
	ClientID      string        `env:"SOURCE_CLIENT_ID"`
	ClientSecret  string        `env:"SOURCE_CLIENT_SECRET"`
	Timeout       time.Duration `env:"SOURCE_TIMEOUT"        env-default:"30s"`
	RefreshWindow time.Duration `env:"SOURCE_REFRESH_WINDOW" env-default:"10m"`
	PageSize      int           `env:"SOURCE_PAGE_SIZE"      env-default:"100"`
	MaxPages      int           `env:"SOURCE_MAX_PAGES"      env-default:"10"`
}

type AIConfig struct {
	Provider             string `env:"AI_PROVIDER"`
	InferenceTimeoutSecs int    `env:"AI_INFERENCE_TIMEOUT_SECS" env-default:"60"`
	Ollama               OllamaConfig
	VLLM                 VLLMConfig
	OpenAI               OpenAIConfig
	Anthropic            AnthropicConfig

	// InferenceTimeout is derived from InferenceTimeoutSecs during Load.
	InferenceTimeout time.Duration `env:"-"`
}

type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL" env-default:"http://localhost:11434"`
	Model   string `env:"OLLAMA_MODEL"    env-default:"llama3"`
}

type VLLMConfig struct {
	BaseURL string `env:"VLLM_BASE_URL" env-default:"http://localhost:8000"`
	Model   string `env:"VLLM_MODEL"`
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL"    env-default:"gpt-4o-mini"`
	BaseURL string `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com"`
}

type AnthropicConfig struct {
	APIKey string `env:"ANTHROPIC_API_KEY"`
	Model  string `env:"ANTHROPIC_MODEL" env-default:"claude-sonnet-4-5-20250929"`
}

// BatchConfig controls the analysis dispatcher.
type BatchConfig struct {
	Size          int           `env:"BATCH_SIZE"            env-default:"10"`
	ChunkSize     int           `env:"BATCH_CHUNK_SIZE"      env-default:"5"`
	ChunkDelay    time.Duration `env:"BATCH_CHUNK_DELAY"     env-default:"1s"`
	MaxChainDepth int           `env:"BATCH_MAX_CHAIN_DEPTH" env-default:"20"`
}

type PipelineConfig struct {
	// Interval of zero disables the in-process schedule.
	Interval      time.Duration `env:"PIPELINE_INTERVAL"       env-default:"0s"`
	LockTTL       time.Duration `env:"PIPELINE_LOCK_TTL"       env-default:"15m"`
	ProfileWindow time.Duration `env:"PIPELINE_PROFILE_WINDOW" env-default:"24h"`
}

type TenantConfig struct {
	Rules   string `env:"TENANT_RULES"`
	Default string `env:"TENANT_DEFAULT" env-default:"default"`
}

type SecretsConfig struct {
	Key string `env:"SECRETS_KEY"`
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from an optional .env file and environment variables
// and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.AI.InferenceTimeout = time.Duration(cfg.AI.InferenceTimeoutSecs) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("SOURCE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Source.BaseURL, "http://") && !strings.HasPrefix(c.Source.BaseURL, "https://") {
		return fmt.Errorf("SOURCE_BASE_URL must start with http:// or https://, got %q", c.Source.BaseURL)
	}
	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.InferenceTimeoutSecs <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive, got %d", c.AI.InferenceTimeoutSecs)
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Batch.Size)
	}
	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("BATCH_CHUNK_SIZE must be positive, got %d", c.Batch.ChunkSize)
	}
	if c.Batch.ChunkDelay < 0 {
		return fmt.Errorf("BATCH_CHUNK_DELAY must not be negative")
	}
	if c.Batch.MaxChainDepth < 0 {
		return fmt.Errorf("BATCH_MAX_CHAIN_DEPTH must not be negative")
	}
	key, err := hex.DecodeString(c.Secrets.Key)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("SECRETS_KEY must be 64 hex characters (32 bytes)")
	}
	return nil
}
