package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and blob driver names.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	BlobFilesystem = "filesystem"
	BlobS3         = "s3"

	ProviderOpenAI    = "openai"
	ProviderSynthetic = "synthetic"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	DefaultLocale      string
	GeoIPDBPath        string
	MaxUploadBytes     int64

	StoreDriver    string
	DatabaseURL    string
	DBMaxConns     int
	RedisURL       string
	RedisKeyPrefix string

	BlobDriver      string
	StoragePath     string
	AWSRegion       string
	S3UploadsBucket string
	S3OutputsBucket string
	S3Endpoint      string

	JobMaxAge         time.Duration
	PipelineTimeout   time.Duration
	StuckJobAfter     time.Duration
	WatchdogInterval  time.Duration
	WorkerConcurrency int
	WorkerQueueSize   int

	TransformProvider string
	OpenAIAPIKey      string
	OpenAIOrgID       string
	OpenAIBaseURL     string
	OpenAIImageModel  string
	OpenAIVisionModel string
	TransformAnalyze  bool
	TransformPrompt   string
	TransformMask     bool
	PreprocessEnabled bool
	PreprocessSize    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 0),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "stager:"),

		BlobDriver:      strings.ToLower(getEnv("BLOB_DRIVER", BlobFilesystem)),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		AWSRegion:       os.Getenv("AWS_REGION"),
		S3UploadsBucket: os.Getenv("S3_UPLOADS_BUCKET"),
		S3OutputsBucket: os.Getenv("S3_OUTPUTS_BUCKET"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),

		JobMaxAge:         getEnvDuration("JOB_MAX_AGE", getEnvDuration("MAX_AGE", 5*time.Minute)),
		PipelineTimeout:   getEnvDuration("PIPELINE_TIMEOUT", 3*time.Minute),
		StuckJobAfter:     getEnvDuration("STUCK_JOB_AFTER", 10*time.Minute),
		WatchdogInterval:  getEnvDuration("WATCHDOG_INTERVAL", time.Minute),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerQueueSize:   getEnvInt("WORKER_QUEUE_SIZE", 32),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIOrgID:       os.Getenv("OPENAI_ORG_ID"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-2"),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o"),
		TransformAnalyze:  getEnvBool("TRANSFORM_ANALYZE", false),
		TransformPrompt:   os.Getenv("TRANSFORM_PROMPT"),
		TransformMask:     getEnvBool("TRANSFORM_MASK", false),
		PreprocessEnabled: getEnvBool("PREPROCESS_ENABLED", true),
		PreprocessSize:    getEnvInt("PREPROCESS_SIZE", 1024),
	}

	cfg.TransformProvider = strings.ToLower(os.Getenv("TRANSFORM_PROVIDER"))
	if cfg.TransformProvider == "" {
		cfg.TransformProvider = ProviderSynthetic
		if cfg.OpenAIAPIKey != "" {
			cfg.TransformProvider = ProviderOpenAI
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case BlobFilesystem:
		if c.StoragePath == "" {
			return fmt.Errorf("STORAGE_PATH is required when BLOB_DRIVER=filesystem")
		}
	case BlobS3:
		if c.S3UploadsBucket == "" || c.S3OutputsBucket == "" {
			return fmt.Errorf("S3_UPLOADS_BUCKET and S3_OUTPUTS_BUCKET are required when BLOB_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	switch c.TransformProvider {
	case ProviderSynthetic:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TRANSFORM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown TRANSFORM_PROVIDER %q", c.TransformProvider)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.WorkerQueueSize < 0 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must not be negative")
	}
	if c.JobMaxAge <= 0 || c.PipelineTimeout <= 0 {
		return fmt.Errorf("JOB_MAX_AGE and PIPELINE_TIMEOUT must be positive")
	}
	if c.DBMaxConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
