package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	PublicURL         string
	PostgresURL       string
	TemporalAddress   string
	TemporalTaskQueue string
	AllowedOrigins    []string
	ScanInterval      time.Duration
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	WorkerTimeout     time.Duration
}

func Load() Config {
	port := getEnv("ADVISOR_PLANE_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	return Config{
		Port:              port,
		PublicURL:         getEnv("ADVISOR_PLANE_URL", "http://localhost:"+port),
		PostgresURL:       postgresURL,
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "advisor-dispatches"),
		AllowedOrigins:    splitOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		ScanInterval:      getEnvDuration("SCAN_INTERVAL", 15*time.Minute),
		LLMProvider:       getEnv("LLM_PROVIDER", "anthropic"),
		LLMModel:          getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		WorkerTimeout:     getEnvDuration("WORKER_TIMEOUT", 45*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "advisor")
	password := getEnv("POSTGRES_PASSWORD", "advisor")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "advisor_plane")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
