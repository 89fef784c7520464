package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds registry service configuration, loaded from the environment.
type Config struct {
	GRPCPort int
	HTTPPort int

	// PprofPort enables the pprof server when non-empty.
	PprofPort string

	LogLevel  string
	LogFormat string

	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ServerURL is the registry server base URL workers report job
	// outcomes to.
	ServerURL string

	JobTimeout    time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with development
// defaults.
func Load() *Config {
	return &Config{
		GRPCPort: envInt("GRPC_PORT", 50051),
		HTTPPort: envInt("HTTP_PORT", 8081),

		PprofPort: envString("PPROF_PORT", ""),

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "text"),

		TemporalHost:      envString("TEMPORAL_HOST", "localhost:7233"),
		TemporalNamespace: envString("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:         envString("TEMPORAL_TASK_QUEUE", "registry-workflows"),

		StorageEndpoint:  envString("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: envString("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: envString("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:    envString("STORAGE_BUCKET", "registry-artifacts"),
		StorageUseSSL:    envBool("STORAGE_USE_SSL", false),

		RedisAddr:     envString("REDIS_ADDR", ""),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		ServerURL: envString("REGISTRY_SERVER_URL", "http://localhost:8081"),

		JobTimeout:    envDuration("JOB_TIMEOUT", 15*time.Minute),
		SweepInterval: envDuration("SWEEP_INTERVAL", time.Minute),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value := fallback
	if raw := os.Getenv(key); raw != "" {
		fmt.Sscanf(raw, "%d", &value)
	}
	return value
}

func envBool(key string, fallback bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			return parsed
		}
	}
	return fallback
}
