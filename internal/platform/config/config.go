package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	strutil "findiff/pkg/platform/strings"
)

// Config is the process configuration assembled from the environment.
type Config struct {
	Server   Server
	Logging  Logging
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Workflow WorkflowConfig
	Media    MediaConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// AdminToken guards bootstrap endpoints; empty disables them.
	AdminToken string
}

type Logging struct {
	Level  string
	Format string
}

// PostgresConfig selects the relational store. An empty DSN keeps every
// module on its in-memory store.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
	AutoMigrate     bool
}

func (c PostgresConfig) Enabled() bool { return c.DSN != "" }

// RedisConfig configures sessions, the revocation list, claim locks and
// serial sequences. An empty URL falls back to in-memory implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig configures the workflow event relay.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partitions   int32
	Replication  int16
	PollInterval time.Duration
	BatchSize    int
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type AuthConfig struct {
	JWTSigningKey   string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type WorkflowConfig struct {
	// MaxReturnedCount is the number of rejections an order absorbs before it
	// is shuffled back into the unassigned pool.
	MaxReturnedCount int
	ClaimLockTTL     time.Duration
}

type MediaConfig struct {
	Root           string
	MaxUploadBytes int64
	URLPrefix      string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("FINDIFF_ADDR", ":8080"),
			ReadTimeout:     envDuration("FINDIFF_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    envDuration("FINDIFF_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  envDuration("FINDIFF_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("FINDIFF_SHUTDOWN_TIMEOUT", 10*time.Second),
			AdminToken:      os.Getenv("FINDIFF_ADMIN_TOKEN"),
		},
		Logging: Logging{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       envDuration("DB_TX_TIMEOUT", 5*time.Second),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      envList("KAFKA_BROKERS"),
			Topic:        envString("KAFKA_WORKFLOW_TOPIC", "findiff.workflow.events"),
			Partitions:   int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			Replication:  int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
			PollInterval: envDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Auth: AuthConfig{
			// Development default; override in every deployed environment.
			JWTSigningKey:   envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:          envString("JWT_ISSUER", "findiff"),
			Audience:        envString("JWT_AUDIENCE", "findiff-api"),
			AccessTokenTTL:  envDuration("ACCESS_TOKEN_TTL", 2*time.Hour),
			RefreshTokenTTL: envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Workflow: WorkflowConfig{
			MaxReturnedCount: envInt("MAX_RETURNED_COUNT", 2),
			ClaimLockTTL:     envDuration("CLAIM_LOCK_TTL", 5*time.Second),
		},
		Media: MediaConfig{
			Root:           envString("MEDIA_ROOT", "./media"),
			MaxUploadBytes: int64(envInt("MEDIA_MAX_UPLOAD_BYTES", 10<<20)),
			URLPrefix:      envString("MEDIA_URL", "/media/"),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func envList(key string) []string {
	return strutil.SplitList(os.Getenv(key))
}
