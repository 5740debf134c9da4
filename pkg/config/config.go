// Package config loads process configuration from CRM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "CRM"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Config is the full process configuration.
type Config struct {
	App         AppConfig
	DB          DBConfig
	JWT         JWTConfig
	Policy      PolicyConfig
	Migrations  MigrationsConfig
	Audit       AuditConfig
	Idempotency IdempotencyConfig
	Worker      WorkerConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("CRM_DB_DSN is empty")
	}
	if c.DB.TxMaxAttempts < 1 {
		return fmt.Errorf("CRM_DB_TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("CRM_DB_MIN_CONNS (%d) exceeds CRM_DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns)
	}
	if c.Worker.CloseDayAt != "" {
		if _, err := time.Parse("15:04", c.Worker.CloseDayAt); err != nil {
			return fmt.Errorf("CRM_WORKER_CLOSE_DAY_AT must be HH:MM: %w", err)
		}
	}
	return nil
}

type AppConfig struct {
	Env      string `envconfig:"ENV" default:"dev"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN              string        `envconfig:"DSN" required:"true"`
	MaxConns         int32         `envconfig:"MAX_CONNS" default:"25"`
	MinConns         int32         `envconfig:"MIN_CONNS" default:"5"`
	MaxConnLifetime  time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime  time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	TxMaxAttempts    int           `envconfig:"TX_MAX_ATTEMPTS" default:"3"`
	TxBackoff        time.Duration `envconfig:"TX_BACKOFF" default:"20ms"`
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"30s"`
}

type JWTConfig struct {
	Secret string `envconfig:"SECRET" required:"true"`
	Issuer string `envconfig:"ISSUER" default:"crm"`
}

// PolicyConfig carries optional CEL rules keyed by operation, as JSON:
//
//	{"deal.approve_finance": "role == 'MANAGER' && 'finance.delegate' in permissions"}
type PolicyConfig struct {
	Rules string `envconfig:"RULES"`
}

type MigrationsConfig struct {
	AutoRun bool `envconfig:"AUTO_RUN" default:"false"`
}

type AuditConfig struct {
	CompressThreshold int `envconfig:"COMPRESS_THRESHOLD" default:"10240"`
}

type IdempotencyConfig struct {
	Enabled bool          `envconfig:"ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"TTL" default:"24h"`
}

// WorkerConfig drives the maintenance worker. An empty CloseDayAt disables
// the scheduled daily closing.
type WorkerConfig struct {
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	StatsInterval   time.Duration `envconfig:"STATS_INTERVAL" default:"5m"`
	CloseDayAt      string        `envconfig:"CLOSE_DAY_AT"`
}
