package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Scene failure policies for production.
const (
	FailurePolicySkip  = "skip"
	FailurePolicyAbort = "abort"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	DatabaseURL        string
	DBMaxConns         int
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int

	OutputDir   string
	TempDir     string
	CatalogPath string

	FFmpegPath   string
	FFprobePath  string
	MediaTimeout time.Duration

	GeminiAPIKey       string
	UseVertexAI        bool
	GoogleCloudProject string
	GoogleCloudRegion  string
	TextModel          string
	VideoModel         string
	VideoPollInterval  time.Duration
	GenerationTimeout  time.Duration

	SceneFailurePolicy string
	CostPerScene       float64

	RedisAddr         string
	RedisPassword     string
	QueueName         string
	WorkerConcurrency int

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		OutputDir:   getEnv("OUTPUT_DIR", "outputs"),
		TempDir:     getEnv("TEMP_DIR", "temp"),
		CatalogPath: strings.TrimSpace(os.Getenv("CATALOG_PATH")),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  getEnv("FFPROBE_PATH", "ffprobe"),
		MediaTimeout: time.Second * time.Duration(getEnvInt("MEDIA_TIMEOUT_SECONDS", 300)),

		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		UseVertexAI:        getEnvBool("GOOGLE_GENAI_USE_VERTEXAI", false),
		GoogleCloudProject: strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
		GoogleCloudRegion:  getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		TextModel:          getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		VideoModel:         getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		VideoPollInterval:  time.Second * time.Duration(getEnvInt("VEO_POLL_INTERVAL_SECONDS", 10)),
		GenerationTimeout:  time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 600)),

		SceneFailurePolicy: strings.ToLower(getEnv("SCENE_FAILURE_POLICY", FailurePolicySkip)),
		CostPerScene:       getEnvFloat("COST_PER_SCENE", 0.25),

		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		QueueName:         getEnv("QUEUE_NAME", "movies"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),

		MinIOEndpoint:  strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    strings.TrimSpace(os.Getenv("MINIO_BUCKET")),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}

	switch cfg.SceneFailurePolicy {
	case FailurePolicySkip, FailurePolicyAbort:
	default:
		return nil, fmt.Errorf("SCENE_FAILURE_POLICY must be %q or %q, got %q", FailurePolicySkip, FailurePolicyAbort, cfg.SceneFailurePolicy)
	}

	if cfg.CostPerScene <= 0 {
		return nil, fmt.Errorf("COST_PER_SCENE must be positive")
	}

	if cfg.UseVertexAI && cfg.GoogleCloudProject == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when GOOGLE_GENAI_USE_VERTEXAI is set")
	}

	// Queued production runs in a separate worker process, so project state
	// has to live somewhere both processes can reach.
	if cfg.RedisAddr != "" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when REDIS_ADDR is set")
	}

	if cfg.MinIOEndpoint != "" && cfg.MinIOBucket == "" {
		return nil, fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	}

	return cfg, nil
}

// GenerationConfigured reports whether remote generation credentials are present.
func (c *Config) GenerationConfigured() bool {
	return c.GeminiAPIKey != "" || c.UseVertexAI
}

// scriptWriteMargin leaves room to encode the response after a script call
// that used up its whole budget.
const scriptWriteMargin = 5 * time.Second

// ScriptTimeout bounds one script generation call. It stays under the HTTP
// write timeout so a synchronous script request still gets its answer,
// falling back to the template when the model is slow.
func (c *Config) ScriptTimeout() time.Duration {
	timeout := c.GenerationTimeout
	if c.HTTPWriteTimeout > scriptWriteMargin {
		limit := c.HTTPWriteTimeout - scriptWriteMargin
		if timeout <= 0 || timeout > limit {
			timeout = limit
		}
	}
	return timeout
}

// QueueEnabled reports whether production is dispatched through Redis.
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != ""
}

// PublishingEnabled reports whether final artifacts are uploaded to object storage.
func (c *Config) PublishingEnabled() bool {
	return c.MinIOEndpoint != ""
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
