package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	PublicBaseURL      string // Externally reachable base URL, used to build webhook callback URLs

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// OpenAI (script generation, Whisper transcription, fallback TTS)
	OpenAIKey string

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey string

	// Replicate (lip-sync rendering)
	ReplicateToken string

	// Notifications (both optional)
	SlackWebhookURL  string
	ResendAPIKey     string
	EmailFromAddress string

	// Rendering
	WorkDir string // Scratch space for ffmpeg intermediates, one subdirectory per project

	// Project cache
	ProjectCacheSize int // Max in-memory projects before LRU eviction

	// Convergence retry policy — how long a finished lip-sync job waits for
	// the asset montage before the project is failed
	ConvergenceMaxAttempts  int
	ConvergenceIntervalSecs int

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                 getEnv("API_PORT", "8080"),
		WorkerEnabled:           getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:           getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:      getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:           getEnv("PUBLIC_BASE_URL", ""),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:             getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:      getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:   getEnv("SUPABASE_STORAGE_BUCKET", "reel-ads"),
		OpenAIKey:               getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:           getEnv("ELEVENLABS_API_KEY", ""),
		ReplicateToken:          getEnv("REPLICATE_API_TOKEN", ""),
		SlackWebhookURL:         getEnv("SLACK_WEBHOOK_URL", ""),
		ResendAPIKey:            getEnv("RESEND_API_KEY", ""),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", "noreply@reelads.app"),
		WorkDir:                 getEnv("WORK_DIR", "/tmp/reelads"),
		ProjectCacheSize:        getEnvInt("PROJECT_CACHE_SIZE", 100),
		ConvergenceMaxAttempts:  getEnvInt("CONVERGENCE_MAX_ATTEMPTS", 5),
		ConvergenceIntervalSecs: getEnvInt("CONVERGENCE_INTERVAL_SECS", 60),
		MaxConcurrentJobs:       getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.ReplicateToken == "" {
		return nil, fmt.Errorf("REPLICATE_API_TOKEN is required")
	}

	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required for lip-sync webhooks")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.ProjectCacheSize < 1 {
		return nil, fmt.Errorf("PROJECT_CACHE_SIZE must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
