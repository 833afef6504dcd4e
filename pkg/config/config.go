package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix is empty because every field names its full variable.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Config aggregates every subsystem's settings.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Billing      BillingConfig
	FeatureFlags FeatureFlagsConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYGRID_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYGRID_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAYGRID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYGRID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAYGRID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYGRID_DB_DSN"`
	Driver string `envconfig:"PAYGRID_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PAYGRID_DB_HOST"`
	Port     int    `envconfig:"PAYGRID_DB_PORT" default:"5432"`
	User     string `envconfig:"PAYGRID_DB_USER"`
	Password string `envconfig:"PAYGRID_DB_PASSWORD"`
	Name     string `envconfig:"PAYGRID_DB_NAME"`
	SSLMode  string `envconfig:"PAYGRID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYGRID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYGRID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYGRID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYGRID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either PAYGRID_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYGRID_REDIS_URL"`
	Address      string        `envconfig:"PAYGRID_REDIS_ADDR"`
	Password     string        `envconfig:"PAYGRID_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYGRID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYGRID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYGRID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYGRID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYGRID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYGRID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"PAYGRID_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PAYGRID_JWT_ISSUER" default:"paygrid"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PAYGRID_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"PAYGRID_PUBSUB_EVENTS_TOPIC" default:"paygrid-audit-events"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"PAYGRID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"PAYGRID_OUTBOX_PUBLISH_POLL_INTERVAL" default:"500ms"`
}

type BillingConfig struct {
	// WorkerAccount is the privileged account the sweep bills as. Plans must
	// grant it the bill permission (or it must hold the network_service role).
	WorkerAccount string        `envconfig:"PAYGRID_BILLING_WORKER_ACCOUNT"`
	SweepInterval time.Duration `envconfig:"PAYGRID_BILLING_SWEEP_INTERVAL" default:"1m"`
	BatchSize     int           `envconfig:"PAYGRID_BILLING_BATCH_SIZE" default:"200"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAYGRID_AUTO_MIGRATE" default:"false"`
}
