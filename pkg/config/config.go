package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL  string        `envconfig:"DATABASE_URL"`
	DBMaxConns   int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	LineageLimit int           `envconfig:"LINEAGE_LIMIT" default:"10"`
	LineageCache time.Duration `envconfig:"LINEAGE_CACHE_TTL" default:"10m"`

	// Text providers, tried in the order OVH, OpenAI, Gemini.
	OVHKey      string `envconfig:"OVH_AI_ENDPOINTS_ACCESS_TOKEN"`
	OVHBaseURL  string `envconfig:"OVH_BASE_URL"`
	OVHModel    string `envconfig:"OVH_MODEL"`
	OpenAIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	CountTokens bool   `envconfig:"COUNT_TOKENS" default:"true"`

	// StructuredOutputs sends a strict json_schema response format instead
	// of json_object. Only enable it when every provider supports it.
	StructuredOutputs bool `envconfig:"STRUCTURED_OUTPUTS" default:"false"`

	ImageEndpoint    string        `envconfig:"IMAGE_ENDPOINT"`
	ImageToken       string        `envconfig:"IMAGE_TOKEN"`
	ImageTimeout     time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
	ImageDeadline    time.Duration `envconfig:"IMAGE_DEADLINE" default:"3m"`
	ImageWorkers     int           `envconfig:"IMAGE_WORKERS" default:"2"`
	ImageQueueSize   int           `envconfig:"IMAGE_QUEUE_SIZE" default:"100"`
	ImagePlaceholder string        `envconfig:"IMAGE_PLACEHOLDER_URL"`
	ImageDir         string        `envconfig:"IMAGE_DIR"`
	ImageBaseURL     string        `envconfig:"IMAGE_BASE_URL" default:"/images"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3PublicURL string `envconfig:"S3_PUBLIC_URL"`
	S3PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"true"`

	VocabularyPath string `envconfig:"VOCABULARY_PATH"`
}

// Load reads the environment. Missing providers are not an error: the
// server falls back to canned content or skips images.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LineageLimit <= 0 {
		return nil, fmt.Errorf("LINEAGE_LIMIT must be positive, got %d", cfg.LineageLimit)
	}
	return &cfg, nil
}

func (c *Config) HasTextProvider() bool {
	return c.OVHKey != "" || c.OpenAIKey != "" || c.GeminiKey != ""
}

func (c *Config) HasImageProvider() bool {
	return c.ImageEndpoint != ""
}

func (c *Config) HasS3() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasImageStorage() bool {
	return c.HasS3() || c.ImageDir != ""
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
