package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more
// paths to load from specific files (e.g. ".env"); with no paths, ".env" is
// used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable
// named by key (e.g. "30s", "2m"), or fallback if unset or invalid.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// BucketConfig holds the connection values for one S3-compatible bucket.
type BucketConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Configured reports whether the bucket has enough values to build a client.
func (b BucketConfig) Configured() bool {
	return b.Endpoint != "" && b.AccessKeyID != "" && b.SecretAccessKey != "" && b.Bucket != ""
}

// Config is the orchestrator's full environment surface.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// DatabaseURL selects the durable record store; empty runs in-memory.
	DatabaseURL string

	RunPodBaseURL    string
	RunPodEndpointID string
	RunPodAPIKey     string
	DispatchTimeout  time.Duration

	WebhookBaseURL string
	WebhookSecret  string

	// Delivery is the R2 bucket holding originals and streaming outputs;
	// Archive is the B2 bucket holding mezzanine encodes.
	Delivery BucketConfig
	Archive  BucketConfig
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		DatabaseURL: GetEnv("DATABASE_URL", ""),

		RunPodBaseURL:    GetEnv("RUNPOD_BASE_URL", ""),
		RunPodEndpointID: GetEnv("RUNPOD_ENDPOINT_ID", ""),
		RunPodAPIKey:     GetEnv("RUNPOD_API_KEY", ""),
		DispatchTimeout:  GetEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),

		WebhookBaseURL: GetEnv("WEBHOOK_BASE_URL", ""),
		WebhookSecret:  GetEnv("WEBHOOK_SECRET", ""),

		Delivery: BucketConfig{
			Endpoint:        GetEnv("R2_ENDPOINT", ""),
			AccessKeyID:     GetEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          GetEnv("R2_BUCKET", ""),
		},
		Archive: BucketConfig{
			Endpoint:        GetEnv("B2_ENDPOINT", ""),
			AccessKeyID:     GetEnv("B2_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetEnv("B2_SECRET_ACCESS_KEY", ""),
			Bucket:          GetEnv("B2_BUCKET", ""),
		},
	}
}
