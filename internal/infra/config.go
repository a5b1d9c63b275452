package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	ComfyBaseURL        string
	ComfyMode           string // auto | real | mock
	ComfyRequestTimeout time.Duration
	ComfyPollInterval   time.Duration
	ComfySingleDeadline time.Duration
	ComfyFramesDeadline time.Duration
	ComfySubmitPerSec   float64
	ComfyWSProgress     bool

	PoseDir string

	StorageBackend string // filesystem | s3
	StoragePath    string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3UseSSL       bool

	MaxBatchSize     int
	FrameConcurrency int

	WorkerStaleAfter   time.Duration
	WorkerPollInterval time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ComfyBaseURL:        getEnv("COMFYUI_URL", "http://localhost:8188"),
		ComfyMode:           getEnv("COMFYUI_MODE", "auto"),
		ComfyRequestTimeout: time.Second * time.Duration(getEnvInt("COMFYUI_REQUEST_TIMEOUT_SECONDS", 30)),
		ComfyPollInterval:   time.Second * time.Duration(getEnvInt("COMFYUI_POLL_INTERVAL_SECONDS", 1)),
		ComfySingleDeadline: time.Second * time.Duration(getEnvInt("COMFYUI_SINGLE_DEADLINE_SECONDS", 120)),
		ComfyFramesDeadline: time.Second * time.Duration(getEnvInt("COMFYUI_FRAMES_DEADLINE_SECONDS", 600)),
		ComfySubmitPerSec:   getEnvFloat("COMFYUI_SUBMIT_PER_SECOND", 4),
		ComfyWSProgress:     getEnvBool("COMFYUI_WS_PROGRESS", false),

		PoseDir: getEnv("POSE_DIR", "./workflows/poses"),

		StorageBackend: getEnv("STORAGE_BACKEND", "filesystem"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3Bucket:       getEnv("S3_BUCKET", "spriteforge-assets"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:       getEnvBool("S3_USE_SSL", false),

		MaxBatchSize:     getEnvInt("MAX_BATCH_SIZE", 10),
		FrameConcurrency: getEnvInt("FRAME_CONCURRENCY", 8),

		WorkerStaleAfter:   time.Minute * time.Duration(getEnvInt("WORKER_STALE_AFTER_MINUTES", 15)),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 30)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.ComfyMode {
	case "auto", "real", "mock":
	default:
		return nil, fmt.Errorf("COMFYUI_MODE must be auto, real or mock, got %q", cfg.ComfyMode)
	}

	switch cfg.StorageBackend {
	case "filesystem":
	case "s3":
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required when STORAGE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be filesystem or s3, got %q", cfg.StorageBackend)
	}

	return cfg, nil
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

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
