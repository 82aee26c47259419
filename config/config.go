package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	BaseURL     string // Base URL for generated short links (e.g. http://localhost:8080)
	FrontendURL string // Allowed CORS origin

	QueueCapacity   int           // Click event buffer capacity
	WorkerCount     int           // Aggregator worker pool size
	BatchSize       int           // Events per persisted batch
	BatchTimeout    time.Duration // Max age of a partial batch before flush
	ShutdownTimeout time.Duration // Budget for flushing buffered events on shutdown

	GeoAPIURL  string        // Geolocation endpoint, empty disables enrichment
	GeoTimeout time.Duration // Per-lookup timeout for geo enrichment
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	return &Config{
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		Port:            port,
		BaseURL:         baseURL,
		FrontendURL:     frontendURL,
		QueueCapacity:   envInt("QUEUE_CAPACITY", 10000),
		WorkerCount:     envInt("WORKER_COUNT", 4),
		BatchSize:       envInt("BATCH_SIZE", 100),
		BatchTimeout:    envDuration("BATCH_TIMEOUT", 5*time.Second),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		GeoAPIURL:       os.Getenv("GEO_API_URL"),
		GeoTimeout:      envDuration("GEO_TIMEOUT", 250*time.Millisecond),
	}, nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
