package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Quota    QuotaConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type UpstreamConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type QuotaConfig struct {
	// DailyLimit is the guest tier's allowance; -1 disables the cap.
	DailyLimit int64

	// VelocityLimit caps requests per VelocityWindow; -1 disables it.
	VelocityLimit     int64
	VelocityWindow    time.Duration
	VelocityAlgorithm string
}

type AuthConfig struct {
	JWTSecret    string
	JWTExpiry    time.Duration
	SeedEmail    string
	SeedPassword string
}

// Loads configuration from the environment. Only the upstream URL is strictly
// required to start; a missing database DSN degrades to the fail-closed
// CONFIG_ERROR path instead of preventing startup.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Upstream: UpstreamConfig{
			URL:     getEnv("UPSTREAM_URL", "https://api.openai.com/v1/chat/completions"),
			APIKey:  os.Getenv("UPSTREAM_API_KEY"),
			Timeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Quota: QuotaConfig{
			DailyLimit:        int64(getEnvInt("DAILY_LIMIT", 15)),
			VelocityLimit:     int64(getEnvInt("VELOCITY_LIMIT", -1)),
			VelocityWindow:    time.Duration(getEnvInt("VELOCITY_WINDOW_SECONDS", 60)) * time.Second,
			VelocityAlgorithm: getEnv("VELOCITY_ALGORITHM", "sliding_window"),
		},
		Auth: AuthConfig{
			JWTSecret:    os.Getenv("JWT_SECRET"),
			JWTExpiry:    time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			SeedEmail:    os.Getenv("ADMIN_EMAIL"),
			SeedPassword: os.Getenv("ADMIN_PASSWORD"),
		},
	}

	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("UPSTREAM_URL cannot be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}
