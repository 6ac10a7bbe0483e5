package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SERVER_DOMAIN", "example.com")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "nsl-router", cfg.MongoDatabase)
	require.Equal(t, "logs/domain-events.log", cfg.DomainLogPath)
	require.Equal(t, "0 3 * * *", cfg.CleanupCronSchedule)
	require.Equal(t, "ca-cert.pem", cfg.CACertPath)
	require.Equal(t, "ca-key.pem", cfg.CAKeyPath)
	require.Equal(t, ":8192", cfg.ListenAddr)
	require.Equal(t, 600, cfg.RoutesTTLSeconds)
	require.Equal(t, 30, cfg.InactiveDomainDays)
	require.Equal(t, 72, cfg.CertValidityHours)
}

func TestLoadRequiresServerDomain(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresMongoURI(t *testing.T) {
	t.Setenv("SERVER_DOMAIN", "example.com")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ROUTES_TTL_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonIntegerTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ROUTES_TTL_SECONDS", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadHonorsOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MONGO_DATABASE", "custom-db")
	t.Setenv("LISTEN_ADDR", ":9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "custom-db", cfg.MongoDatabase)
	require.Equal(t, ":9000", cfg.ListenAddr)
}
