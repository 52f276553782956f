package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitMaxAttempts  int
	RateLimitWindow       time.Duration
	IPReputationThreshold int
	FingerprintMaxIPs     int
	ResultsLockTTL        time.Duration

	EnforceVoterRoleRestriction bool
	EnableElectionCloser        bool
	CloserInterval              time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "intellicash"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		RateLimitMaxAttempts:  envInt("VOTING_RATE_LIMIT_MAX_ATTEMPTS", 10),
		RateLimitWindow:       envDuration("VOTING_RATE_LIMIT_WINDOW", 2*time.Minute),
		IPReputationThreshold: envInt("VOTING_IP_REPUTATION_THRESHOLD", 20),
		FingerprintMaxIPs:     envInt("VOTING_FINGERPRINT_MAX_IPS", 5),
		ResultsLockTTL:        envDuration("VOTING_RESULTS_LOCK_TTL", 30*time.Second),

		EnforceVoterRoleRestriction: envBool("ENFORCE_VOTER_ROLE_RESTRICTION", false),
		EnableElectionCloser:        envBool("ENABLE_ELECTION_CLOSER", true),
		CloserInterval:              envDuration("ELECTION_CLOSER_INTERVAL", 30*time.Second),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
