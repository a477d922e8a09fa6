// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devSecret = "dev-secret"

// Config holds chat server configuration loaded from environment.
type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	DBURL        string
	DBMaxConns   int
	RedisURL     string
	UserCacheTTL time.Duration

	AsynqConcurrency int

	KafkaBrokers     []string
	KafkaTopicPrefix string

	PingPeriod      time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	ShutdownTimeout time.Duration

	CORSOrigins []string
}

// IsDev reports whether the server runs in a developer environment.
func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "local"
}

// Load parses environment variables into a Config struct.
func Load() (Config, error) {
	cfg := Config{
		Env:              strings.TrimSpace(getEnv("APP_ENV", "dev")),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        getEnv("JWT_ISSUER", "realtime-chat"),
		DBURL:            strings.TrimSpace(os.Getenv("DB_URL")),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		KafkaBrokers:     splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix: strings.TrimSpace(getEnv("KAFKA_TOPIC_PREFIX", "chat")),
		CORSOrigins:      splitAndTrim(getEnv("CORS_ORIGINS", "*")),
	}
	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = devSecret
	}

	var err error
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"TOKEN_TTL", "24h", &cfg.TokenTTL},
		{"USER_CACHE_TTL", "5m", &cfg.UserCacheTTL},
		{"WS_PING_PERIOD", "30s", &cfg.PingPeriod},
		{"WS_WRITE_TIMEOUT", "10s", &cfg.WriteTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"DB_MAX_CONNS", 4, &cfg.DBMaxConns},
		{"ASYNQ_CONCURRENCY", 4, &cfg.AsynqConcurrency},
		{"WS_SEND_BUFFER", 64, &cfg.SendBuffer},
	}
	for _, i := range ints {
		if *i.dst, err = parsePositiveInt(i.key, i.def); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return dur, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return v, nil
}
