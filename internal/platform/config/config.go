package config

import (
	"os"
	"strings"
	"time"

	pstrings "invigil/pkg/platform/strings"
)

// SessionCacheTTL bounds how long a cached session projection may be trusted.
// Fixed at 300 seconds: the maximum staleness window for suspension
// propagation when no explicit invalidation happens.
const SessionCacheTTL = 300 * time.Second

// HeartbeatCadence is the expected client heartbeat interval during an exam.
// A (subject, exam) pair silent for more than twice this is a candidate
// disconnect.
const HeartbeatCadence = 30 * time.Second

// ViolationEscalationWindow is how long repeated warnings for one
// (subject, exam) pair accumulate toward a critical escalation before the
// count resets.
const ViolationEscalationWindow = 10 * time.Minute

// Server captures process-level configuration.
type Server struct {
	Addr             string
	JWTSigningKey    string
	Redis            RedisConfig
	PostgresDSN      string
	KafkaBrokers     []string
	KafkaTopic       string
	AuthorityTimeout time.Duration
}

// RedisConfig configures the shared redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("INVIGIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	topic := os.Getenv("KAFKA_TELEMETRY_TOPIC")
	if topic == "" {
		topic = "proctoring.telemetry"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		KafkaBrokers:     brokers,
		KafkaTopic:       topic,
		AuthorityTimeout: 2 * time.Second,
	}
}
