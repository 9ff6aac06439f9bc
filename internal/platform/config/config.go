package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from its environment.
type Config struct {
	Addr          string
	JWTSigningKey string

	// QuorumThreshold is the number of distinct entity roles required to
	// finalize a death record.
	QuorumThreshold int

	// VerificationInterval is how long a successful liveness verification
	// remains valid before the next one is due.
	VerificationInterval time.Duration
	// FailureCeiling is the number of consecutive failed or expired liveness
	// sessions after which the subject is escalated to in-person verification.
	FailureCeiling int
	// SessionTTL bounds a single liveness ceremony in wall-clock time.
	SessionTTL time.Duration
	// ProofDeadline bounds the external proof-generation call, independent of
	// the collaborator's own timeout.
	ProofDeadline time.Duration
	// DueSoonWindow is how far ahead the scheduler lists upcoming verifications.
	DueSoonWindow time.Duration

	// EffectMaxAttempts bounds downstream retries before operator escalation.
	EffectMaxAttempts int
	// EffectBaseBackoff is the initial retry delay; it doubles per attempt.
	EffectBaseBackoff time.Duration

	// AuthRateLimit caps token requests per client IP per AuthRateWindow.
	AuthRateLimit  int
	AuthRateWindow time.Duration

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Missing values fall back to development defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:                 envString("REGISTRUM_ADDR", ":8080"),
		JWTSigningKey:        envString("REGISTRUM_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		QuorumThreshold:      envInt("REGISTRUM_QUORUM_THRESHOLD", 2),
		VerificationInterval: envDuration("REGISTRUM_VERIFICATION_INTERVAL", 6*30*24*time.Hour),
		FailureCeiling:       envInt("REGISTRUM_FAILURE_CEILING", 3),
		SessionTTL:           envDuration("REGISTRUM_SESSION_TTL", 5*time.Minute),
		ProofDeadline:        envDuration("REGISTRUM_PROOF_DEADLINE", 30*time.Second),
		DueSoonWindow:        envDuration("REGISTRUM_DUE_SOON_WINDOW", 14*24*time.Hour),
		EffectMaxAttempts:    envInt("REGISTRUM_EFFECT_MAX_ATTEMPTS", 5),
		EffectBaseBackoff:    envDuration("REGISTRUM_EFFECT_BASE_BACKOFF", 200*time.Millisecond),
		AuthRateLimit:        envInt("REGISTRUM_AUTH_RATE_LIMIT", 20),
		AuthRateWindow:       envDuration("REGISTRUM_AUTH_RATE_WINDOW", time.Minute),
		PostgresDSN:          os.Getenv("REGISTRUM_POSTGRES_DSN"),
		RedisURL:             os.Getenv("REGISTRUM_REDIS_URL"),
		KafkaTopic:           envString("REGISTRUM_KAFKA_TOPIC", "registrum.commits"),
	}
	if brokers := os.Getenv("REGISTRUM_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
