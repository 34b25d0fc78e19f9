package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector collection backends.
const (
	BackendPgvector = "pgvector"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Asset store backends.
const (
	AssetsLocal = "local"
	AssetsS3    = "s3"
)

// Embedding providers.
const (
	EmbedGemini = "gemini"
	EmbedOpenAI = "openai"
)

type Config struct {
	Port           string
	LogLevel       string
	LogFormat      string
	JWTSecret      string
	AllowedOrigins []string
	MaxUploadBytes int64

	VectorBackend  string
	CollectionName string
	DatabaseURL    string
	SslCertPath    string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	AssetBackend  string
	ImageCacheDir string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string

	EmbedProvider string
	AIAPIKey      string
	EmbedModel    string
	EmbedDim      int
	VisionModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	EarningsDir   string
	SourcePattern string
	CatalogPath   string

	ChunkSize             int
	ChunkOverlap          int
	EmbedBatchSize        int
	MaxConcurrentEmbeds   int
	MaxConcurrentDescribe int
	IngestWorkers         int
	MaxRetries            int
	RetryBaseDelay        time.Duration

	NarrativeTopK int
	TabularTopK   int
	CombinedTopK  int
}

// LoadConfig reads .env (if present) and the process environment.
// The returned config has not been validated; call Validate before use.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50<<20),

		VectorBackend:  strings.ToLower(getEnv("VECTOR_BACKEND", BackendPgvector)),
		CollectionName: getEnv("COLLECTION_NAME", "financial_reports"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "./ledgerlens.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),

		AssetBackend:  strings.ToLower(getEnv("ASSET_BACKEND", AssetsLocal)),
		ImageCacheDir: getEnv("IMAGE_CACHE_DIR", "earnings/image_cache"),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", "ledgerlens-assets"),

		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", EmbedGemini)),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),
		VisionModel:   getEnv("VISION_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		EarningsDir:   getEnv("EARNINGS_DIR", "earnings"),
		SourcePattern: getEnv("SOURCE_PATTERN", "**/*.pdf"),
		CatalogPath:   getEnv("CATALOG_PATH", ""),

		ChunkSize:             getEnvInt("CHUNK_SIZE", 1500),
		ChunkOverlap:          getEnvInt("CHUNK_OVERLAP", 200),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 16),
		MaxConcurrentEmbeds:   getEnvInt("MAX_CONCURRENT_EMBEDS", 4),
		MaxConcurrentDescribe: getEnvInt("MAX_CONCURRENT_DESCRIBE", 2),
		IngestWorkers:         getEnvInt("INGEST_WORKERS", 2),
		MaxRetries:            getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:        getEnvDuration("RETRY_BASE_DELAY", time.Second),

		NarrativeTopK: getEnvInt("NARRATIVE_TOP_K", 10),
		TabularTopK:   getEnvInt("TABULAR_TOP_K", 5),
		CombinedTopK:  getEnvInt("COMBINED_TOP_K", 15),
	}

	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	if cfg.MaxConcurrentEmbeds <= 0 {
		cfg.MaxConcurrentEmbeds = 4
	}
	if cfg.MaxConcurrentDescribe <= 0 {
		cfg.MaxConcurrentDescribe = 2
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return cfg
}

// Validate checks settings that would otherwise fail late, deep inside a
// pipeline run.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case BackendPgvector:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.VectorBackend)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.AssetBackend {
	case AssetsLocal:
		if c.ImageCacheDir == "" {
			return fmt.Errorf("IMAGE_CACHE_DIR is required for local assets")
		}
	case AssetsS3:
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" || c.BucketName == "" {
			return fmt.Errorf("AWS_ACCESS_KEY, AWS_SECRET_KEY and BUCKET_NAME are required for s3 assets")
		}
	default:
		return fmt.Errorf("unknown ASSET_BACKEND %q", c.AssetBackend)
	}

	switch c.EmbedProvider {
	case EmbedGemini:
		if c.AIAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case EmbedOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai embedder")
		}
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}

	if c.CollectionName == "" {
		return fmt.Errorf("COLLECTION_NAME must not be empty")
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.NarrativeTopK <= 0 || c.TabularTopK <= 0 || c.CombinedTopK <= 0 {
		return fmt.Errorf("top-k settings must be positive")
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
