package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the evaluation pipeline. Threshold and attempt bounds mirror
// the production rubric service guidance.
const (
	DefaultPassingThreshold  = 0.7
	DefaultMaxAttempts       = 3
	DefaultBatchConcurrency  = 5
	DefaultRubricMaxRetries  = 3
	DefaultRubricRetryDelay  = 10 * time.Second
	DefaultGenRetryAttempts  = 5
	DefaultGenRetryBaseDelay = 1 * time.Second
	DefaultGenRetryMaxDelay  = 20 * time.Second
	DefaultGenRetryJitter    = 0.3
	DefaultListingCacheTTL   = 5 * time.Minute
	DefaultListingCacheSize  = 128
	DefaultPort              = "8080"
	DefaultBlobDir           = "data/blobs"
	DefaultReportPath        = "batch_report.html"
	DefaultArtifactKind      = "image"
)

// Config captures all runtime settings shared across binaries.
type Config struct {
	// Server
	Port           string   `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`

	// External services
	DescriptionModelURL string `yaml:"description_model_url"`
	GenerationModelURL  string `yaml:"generation_model_url"`
	JudgeURL            string `yaml:"judge_url"`
	APIKey              string `yaml:"api_key"`

	// Blob storage
	BlobDir    string `yaml:"blob_dir"`
	Bucket     string `yaml:"bucket"`
	ReportPath string `yaml:"report_path"`

	// Pipeline bounds
	PassingThreshold float64 `yaml:"passing_threshold"`
	MaxAttempts      int     `yaml:"max_attempts"`
	BatchConcurrency int     `yaml:"batch_concurrency"`
	ArtifactKind     string  `yaml:"artifact_kind"`

	// Whether an empty generation result consumes the current attempt and
	// retries, instead of aborting the product run.
	ConsumeAttemptOnEmptyArtifact bool `yaml:"consume_attempt_on_empty_artifact"`

	// Retry pacing. RubricMaxRetries bounds total rubric calls per
	// operation, first call included.
	RubricMaxRetries  int           `yaml:"rubric_max_retries"`
	RubricRetryDelay  time.Duration `yaml:"rubric_retry_delay"`
	GenRetryAttempts  int           `yaml:"gen_retry_attempts"`
	GenRetryBaseDelay time.Duration `yaml:"gen_retry_base_delay"`
	GenRetryMaxDelay  time.Duration `yaml:"gen_retry_max_delay"`
	GenRetryJitter    float64       `yaml:"gen_retry_jitter"`

	// Listing cache
	ListingCacheTTL  time.Duration `yaml:"listing_cache_ttl"`
	ListingCacheSize int           `yaml:"listing_cache_size"`
}

// Default returns a Config populated with defaults only.
func Default() Config {
	return Config{
		Port:                          DefaultPort,
		Environment:                   "development",
		LogLevel:                      "info",
		BlobDir:                       DefaultBlobDir,
		Bucket:                        "product-fidelity",
		ReportPath:                    DefaultReportPath,
		PassingThreshold:              DefaultPassingThreshold,
		MaxAttempts:                   DefaultMaxAttempts,
		BatchConcurrency:              DefaultBatchConcurrency,
		ArtifactKind:                  DefaultArtifactKind,
		ConsumeAttemptOnEmptyArtifact: true,
		RubricMaxRetries:              DefaultRubricMaxRetries,
		RubricRetryDelay:              DefaultRubricRetryDelay,
		GenRetryAttempts:              DefaultGenRetryAttempts,
		GenRetryBaseDelay:             DefaultGenRetryBaseDelay,
		GenRetryMaxDelay:              DefaultGenRetryMaxDelay,
		GenRetryJitter:                DefaultGenRetryJitter,
		ListingCacheTTL:               DefaultListingCacheTTL,
		ListingCacheSize:              DefaultListingCacheSize,
	}
}

// Load builds the configuration from defaults, an optional YAML file pointed
// to by FIDELITY_CONFIG, then environment variable overrides, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("FIDELITY_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("FIDELITY_PORT", c.Port)
	c.Environment = getEnv("FIDELITY_ENV", c.Environment)
	c.LogLevel = getEnv("FIDELITY_LOG_LEVEL", c.LogLevel)
	if origins := os.Getenv("FIDELITY_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitAndTrim(origins)
	}

	c.DescriptionModelURL = getEnv("FIDELITY_DESCRIPTION_MODEL_URL", c.DescriptionModelURL)
	c.GenerationModelURL = getEnv("FIDELITY_GENERATION_MODEL_URL", c.GenerationModelURL)
	c.JudgeURL = getEnv("FIDELITY_JUDGE_URL", c.JudgeURL)
	c.APIKey = getEnv("FIDELITY_API_KEY", c.APIKey)

	c.BlobDir = getEnv("FIDELITY_BLOB_DIR", c.BlobDir)
	c.Bucket = getEnv("FIDELITY_BUCKET", c.Bucket)
	c.ReportPath = getEnv("FIDELITY_REPORT_PATH", c.ReportPath)
	c.ArtifactKind = getEnv("FIDELITY_ARTIFACT_KIND", c.ArtifactKind)

	c.PassingThreshold = getEnvFloat("FIDELITY_PASSING_THRESHOLD", c.PassingThreshold)
	c.MaxAttempts = getEnvInt("FIDELITY_MAX_ATTEMPTS", c.MaxAttempts)
	c.BatchConcurrency = getEnvInt("FIDELITY_BATCH_CONCURRENCY", c.BatchConcurrency)
	c.ConsumeAttemptOnEmptyArtifact = getEnvBool("FIDELITY_CONSUME_ATTEMPT_ON_EMPTY_ARTIFACT", c.ConsumeAttemptOnEmptyArtifact)

	c.RubricMaxRetries = getEnvInt("FIDELITY_RUBRIC_MAX_RETRIES", c.RubricMaxRetries)
	c.RubricRetryDelay = getEnvDuration("FIDELITY_RUBRIC_RETRY_DELAY", c.RubricRetryDelay)
	c.GenRetryAttempts = getEnvInt("FIDELITY_GEN_RETRY_ATTEMPTS", c.GenRetryAttempts)
	c.GenRetryBaseDelay = getEnvDuration("FIDELITY_GEN_RETRY_BASE_DELAY", c.GenRetryBaseDelay)
	c.GenRetryMaxDelay = getEnvDuration("FIDELITY_GEN_RETRY_MAX_DELAY", c.GenRetryMaxDelay)
	c.GenRetryJitter = getEnvFloat("FIDELITY_GEN_RETRY_JITTER", c.GenRetryJitter)

	c.ListingCacheTTL = getEnvDuration("FIDELITY_LISTING_CACHE_TTL", c.ListingCacheTTL)
	c.ListingCacheSize = getEnvInt("FIDELITY_LISTING_CACHE_SIZE", c.ListingCacheSize)
}

// Validate checks bounds that the pipeline depends on.
func (c *Config) Validate() error {
	if c.PassingThreshold < 0 || c.PassingThreshold > 1 {
		return fmt.Errorf("passing threshold must be in [0,1], got %v", c.PassingThreshold)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.ArtifactKind != "image" && c.ArtifactKind != "video" {
		return fmt.Errorf("artifact kind must be image or video, got %q", c.ArtifactKind)
	}
	if c.RubricMaxRetries < 1 {
		return fmt.Errorf("rubric max retries must be at least 1, got %d", c.RubricMaxRetries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
