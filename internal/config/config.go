package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL        string
	LiveSnapshotTTL time.Duration

	// JWT
	JWTSecret    string
	JWTAccessTTL time.Duration

	// Realtime
	Realtime RealtimeConfig

	// Frontend
	FrontendURL string
}

// RealtimeConfig tunes the websocket transport and ingestion path.
type RealtimeConfig struct {
	SendBuffer           int
	InboundQueue         int
	MaxFrameBytes        int64
	PersistTimeout       time.Duration
	EnforceRoomOwnership bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		Env:             getEnvOrDefault("ENV", "development"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:     mustGetEnv("DATABASE_URL"),
		MigrationsDir:   getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:        mustGetEnv("REDIS_URL"),
		LiveSnapshotTTL: getEnvAsDurationOrDefault("LIVE_SNAPSHOT_TTL", 2*time.Hour),
		JWTSecret:       mustGetEnv("JWT_SECRET"),
		JWTAccessTTL:    getEnvAsDurationOrDefault("JWT_ACCESS_TTL", 12*time.Hour),
		Realtime: RealtimeConfig{
			SendBuffer:           getEnvAsIntOrDefault("REALTIME_SEND_BUFFER", 256),
			InboundQueue:         getEnvAsIntOrDefault("REALTIME_INBOUND_QUEUE", 64),
			MaxFrameBytes:        int64(getEnvAsIntOrDefault("REALTIME_MAX_FRAME_BYTES", 16*1024)),
			PersistTimeout:       getEnvAsDurationOrDefault("REALTIME_PERSIST_TIMEOUT", 5*time.Second),
			EnforceRoomOwnership: getEnvAsBoolOrDefault("REALTIME_ENFORCE_ROOM_OWNERSHIP", false),
		},
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
