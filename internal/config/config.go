package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port          string
	Env           string
	JWTSecret     string
	WebhookSecret string
	CORSHosts     []string

	DB      DatabaseConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Ledger  LedgerConfig
	S3      S3Config
	Worker  WorkerConfig
	LockTTL time.Duration
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LLMConfig contains the OpenAI-compatible chat completion endpoint used for
// structured markup generation.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LedgerConfig contains credit ledger defaults.
type LedgerConfig struct {
	DefaultCredits int
}

// S3Config contains the bucket that receives published artifacts.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// WorkerConfig contains configuration for the delivery retry worker.
type WorkerConfig struct {
	SyncInterval    time.Duration
	SyncBatchSize   int
	SyncConcurrency int
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; production relies on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.WebhookSecret = getEnv("WEBHOOK_SECRET", "")
	cfg.CORSHosts = splitList(getEnv("CORS_ALLOWED_HOSTS", "localhost:3000,127.0.0.1:3000"))

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Ledger
	cfg.Ledger = LedgerConfig{
		DefaultCredits: getEnvInt("DEFAULT_CREDITS", 10),
	}

	// S3 (artifact delivery); empty bucket disables publishing
	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", "us-east-1"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Worker = WorkerConfig{
		SyncBatchSize:   getEnvInt("SYNC_BATCH_SIZE", 50),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", 4),
	}

	var err error
	if cfg.Worker.SyncInterval, err = parseDurationEnv("SYNC_INTERVAL", "1m"); err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	if cfg.LockTTL, err = parseDurationEnv("LOCK_TTL", "90s"); err != nil {
		return nil, fmt.Errorf("invalid LOCK_TTL: %w", err)
	}

	// LLM (Groq by default)
	cfg.LLM = LLMConfig{
		BaseURL: getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		APIKey:  getEnv("LLM_API_KEY", ""),
		Model:   getEnv("LLM_MODEL", "llama-3.1-8b-instant"),
	}
	if cfg.LLM.Timeout, err = parseDurationEnv("LLM_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set for admin authentication")
	}
	if c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET must be set to verify product webhooks")
	}
	if c.LLM.APIKey == "" {
		return errors.New("LLM_API_KEY must be set for schema generation")
	}
	if c.Ledger.DefaultCredits < 0 {
		return errors.New("DEFAULT_CREDITS must be >= 0")
	}
	if c.Worker.SyncBatchSize <= 0 || c.Worker.SyncConcurrency <= 0 {
		return errors.New("SYNC_BATCH_SIZE and SYNC_CONCURRENCY must be > 0")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
