// Package config loads service configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// dotenv file named by ENV_FILE (or ./.env when present). Empty backend URLs
// select the in-process fallbacks: in-memory inventory and session stores,
// and logged audit events.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"attest/internal/proof/models"
)

// devSigningKey is the JWT_SIGNING_KEY default; regulated mode refuses it.
const devSigningKey = "dev-secret-key-change-in-production"

// Config is the full service configuration.
type Config struct {
	Server        Server
	Network       Network
	Auth          Auth
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Collaborators Collaborators
	Log           Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	RegulatedMode   bool          `env:"REGULATED_MODE" envDefault:"false"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

// Network selects the chain the wallet operates on.
type Network struct {
	Name string `env:"NETWORK" envDefault:"testnet"`
}

// Auth configures validation of the host's bearer tokens.
type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"attest-host"`
}

// DatabaseConfig configures the postgres inventory store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	// SeedFile optionally seeds the inventory at startup.
	SeedFile string `env:"INVENTORY_SEED_FILE"`
}

// RedisConfig configures the session store and status cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"15m"`
}

// KafkaConfig configures the audit stream and result topic.
type KafkaConfig struct {
	Brokers         string        `env:"KAFKA_BROKERS"`
	AuditTopic      string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"proof.audit"`
	ResultTopic     string        `env:"KAFKA_RESULT_TOPIC" envDefault:"proof.results"`
	Acks            string        `env:"KAFKA_ACKS" envDefault:"all"`
	Retries         int           `env:"KAFKA_RETRIES" envDefault:"3"`
	DeliveryTimeout time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`
	Partitions      int32         `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	Replication     int16         `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
}

// Collaborators locates the external ledger, key-derivation and prover services.
type Collaborators struct {
	LedgerURL        string        `env:"LEDGER_URL"`
	KeyDerivationURL string        `env:"KEY_DERIVATION_URL"`
	ProverURL        string        `env:"PROVER_URL"`
	Timeout          time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"10s"`
	ProveTimeout     time.Duration `env:"PROVE_TIMEOUT" envDefault:"2m"`
}

// Log configures the structured logger.
type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// New parses environment variables into any config struct.
func New[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads ENV_FILE, or ./.env, into the process environment. A missing
// default .env file is not an error.
func LoadEnv() error {
	if file := os.Getenv("ENV_FILE"); file != "" {
		return godotenv.Load(file)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads and validates the full configuration.
func Load() (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := New[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if _, err := models.ParseNetwork(c.Network.Name); err != nil {
		return fmt.Errorf("NETWORK: %w", err)
	}
	if c.Redis.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Server.RegulatedMode && c.Auth.JWTSigningKey == devSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in regulated mode")
	}
	return nil
}

// NetworkName returns the validated network.
func (c *Config) NetworkName() models.Network {
	n, _ := models.ParseNetwork(c.Network.Name)
	return n
}
