// Package config provides configuration structures and validation for the escrow
// services. Every binary loads the same Config; the component name decides which
// processor credentials must be present.
package config

import (
	"errors"
	"strings"
	"time"
)

// Component names, one per binary under cmd/.
const (
	ComponentAPIGateway       = "api_gateway"
	ComponentSettlementWorker = "settlement_worker"
	ComponentEventProjector   = "event_projector"
)

// Config holds the complete application configuration.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Gateway     GatewayConfig
	Escrow      EscrowConfig
	Settlement  SettlementConfig
	Redis       RedisConfig
	Metrics     MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env       string
	Name      string
	Component string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration for escrow lifecycle events
type KafkaConfig struct {
	Brokers           string
	EventsTopic       string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration for the transaction store
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the event timeline
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox relay configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// GatewayConfig describes the payment processor connection.
type GatewayConfig struct {
	BaseURL     string
	SecretKey   string // Bearer credential for every processor call
	PublicKey   string
	Timeout     time.Duration // Upper bound for a single processor call
	RedirectURL string
	LogoURL     string
	Title       string
	Description string
}

// EscrowConfig holds the escrow policy.
type EscrowConfig struct {
	HoldPeriod            time.Duration
	Currency              string
	WebhookSecret         string
	VerifyWebhookPayments bool
}

// SettlementConfig controls the settlement and pending-expiry sweeps.
type SettlementConfig struct {
	Interval              time.Duration
	BatchSize             int
	MaxTransferAttempts   int
	LockKey               string
	RunOnStart            bool
	PendingExpiryInterval time.Duration
	PendingExpiryAfter    time.Duration
}

// RedisConfig configures the sweep lease. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MetricsConfig configures the standalone metrics listener used by the workers.
type MetricsConfig struct {
	Port int
}

// validate checks every section and reports all violations at once.
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.EventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_EVENTS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if c.Gateway.BaseURL == "" {
		validationErrors = append(validationErrors, "FLW_BASE_URL is required")
	}
	if c.Gateway.Timeout <= 0 {
		validationErrors = append(validationErrors, "GATEWAY_TIMEOUT must be greater than 0")
	}

	if c.Escrow.HoldPeriod <= 0 {
		validationErrors = append(validationErrors, "ESCROW_HOLD_PERIOD must be greater than 0")
	}
	if len(c.Escrow.Currency) != 3 {
		validationErrors = append(validationErrors, "ESCROW_CURRENCY must be a 3-letter code")
	}

	if c.Settlement.Interval <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_INTERVAL must be greater than 0")
	}
	if c.Settlement.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_BATCH_SIZE must be greater than 0")
	}
	if c.Settlement.MaxTransferAttempts <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_MAX_TRANSFER_ATTEMPTS must be greater than 0")
	}
	if c.Settlement.PendingExpiryInterval <= 0 {
		validationErrors = append(validationErrors, "PENDING_EXPIRY_INTERVAL must be greater than 0")
	}
	if c.Settlement.PendingExpiryAfter <= 0 {
		validationErrors = append(validationErrors, "PENDING_EXPIRY_AFTER must be greater than 0")
	}

	if c.Metrics.Port <= 0 {
		validationErrors = append(validationErrors, "METRICS_PORT must be greater than 0")
	}

	// Processor credentials are only demanded from the binaries that talk to it.
	switch c.Application.Component {
	case ComponentAPIGateway:
		if c.Gateway.SecretKey == "" {
			validationErrors = append(validationErrors, "FLW_SECRET_KEY is required")
		}
		if c.Escrow.WebhookSecret == "" {
			validationErrors = append(validationErrors, "FLW_HASH is required")
		}
	case ComponentSettlementWorker:
		if c.Gateway.SecretKey == "" {
			validationErrors = append(validationErrors, "FLW_SECRET_KEY is required")
		}
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
