// Package config loads the environment-variable configuration schema
// listed in the control plane's external interface description.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting the control plane reads
// at startup.
type Config struct {
	ServerDomain string

	// MongoURI and MongoDatabase locate the identity document store.
	MongoURI      string
	MongoDatabase string

	// RedisAddr locates the ephemeral route/activity store.
	RedisAddr string

	RoutesTTLSeconds   int
	InactiveDomainDays int
	DomainLogPath      string
	CleanupCronSchedule string

	CACertPath        string
	CAKeyPath         string
	CertValidityHours int

	ServiceAPIKey string

	ListenAddr string
}

// Load reads the configuration from the process environment, applying the
// defaults called out in the spec.
func Load() (*Config, error) {
	cfg := &Config{
		ServerDomain:        os.Getenv("SERVER_DOMAIN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDatabase:       getenvDefault("MONGO_DATABASE", "nsl-router"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		DomainLogPath:       getenvDefault("DOMAIN_LOG_PATH", "logs/domain-events.log"),
		CleanupCronSchedule: getenvDefault("CLEANUP_CRON_SCHEDULE", "0 3 * * *"),
		CACertPath:          getenvDefault("CA_CERT_PATH", "ca-cert.pem"),
		CAKeyPath:           getenvDefault("CA_KEY_PATH", "ca-key.pem"),
		ServiceAPIKey:       os.Getenv("SERVICE_API_KEY"),
		ListenAddr:          getenvDefault("LISTEN_ADDR", ":8192"),
	}

	if cfg.ServerDomain == "" {
		return nil, fmt.Errorf("SERVER_DOMAIN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	var err error
	cfg.RoutesTTLSeconds, err = getenvIntDefault("ROUTES_TTL_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	if cfg.RoutesTTLSeconds <= 0 {
		return nil, fmt.Errorf("ROUTES_TTL_SECONDS must be a positive integer, got %d", cfg.RoutesTTLSeconds)
	}

	cfg.InactiveDomainDays, err = getenvIntDefault("INACTIVE_DOMAIN_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg.CertValidityHours, err = getenvIntDefault("CERT_VALIDITY_HOURS", 72)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
