package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App           AppConfig
	Store         StoreConfig
	Postgres      PostgresConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	Logger        LoggerConfig
	Auth          AuthConfig
	Notification  NotificationConfig
	Escalation    EscalationConfig
	Approval      ApprovalConfig
	BusinessHours BusinessHoursConfig
	Seed          SeedConfig
	Metrics       MetricsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"change-service"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// StoreConfig picks the persistence backend.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"memory"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
	// ApplicationName is reported in pg_stat_activity.
	ApplicationName   string        `env:"POSTGRES_APPLICATION_NAME" envDefault:"change-service"`
	StatementTimeout  time.Duration `env:"POSTGRES_STATEMENT_TIMEOUT" envDefault:"5s"`
	HealthCheckPeriod time.Duration `env:"POSTGRES_HEALTH_CHECK_PERIOD" envDefault:"30s"`
}

// MongoConfig holds document store connection values.
type MongoConfig struct {
	URI            string        `env:"MONGO_URI"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"change_service"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	EnsureIndexes  bool          `env:"MONGO_ENSURE_INDEXES" envDefault:"true"`
}

// RedisConfig holds Redis connection values. An empty address disables Redis.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"5m"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format is json or console.
	Format      string `env:"LOG_FORMAT" envDefault:"json"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// AuthConfig defines how bearer tokens minted by the identity provider are verified.
type AuthConfig struct {
	JWTSecret             string `env:"AUTH_JWT_SECRET" envDefault:"dev-secret"`
	Issuer                string `env:"AUTH_ISSUER"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	QueueSize  int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
}

// EscalationConfig drives the timeout sweeper.
type EscalationConfig struct {
	Enabled       bool          `env:"ESCALATION_ENABLED" envDefault:"true"`
	SweepInterval time.Duration `env:"ESCALATION_SWEEP_INTERVAL" envDefault:"1m"`
	BatchSize     int           `env:"ESCALATION_BATCH_SIZE" envDefault:"100"`
}

// ApprovalConfig controls who may decide on a step.
type ApprovalConfig struct {
	// EnforceRoles limits decisions to identities the role resolver maps to the step's approver roles.
	EnforceRoles bool `env:"APPROVAL_ENFORCE_ROLES" envDefault:"false"`
}

// BusinessHoursConfig defines the working week for the businessHours workflow trigger.
type BusinessHoursConfig struct {
	Start    string   `env:"BUSINESS_HOURS_START" envDefault:"09:00"`
	End      string   `env:"BUSINESS_HOURS_END" envDefault:"17:00"`
	Weekdays []string `env:"BUSINESS_HOURS_WEEKDAYS" envDefault:"mon,tue,wed,thu,fri" envSeparator:","`
	Timezone string   `env:"BUSINESS_HOURS_TIMEZONE" envDefault:"UTC"`
}

// SeedConfig points at reference data loaded on startup.
type SeedConfig struct {
	File string `env:"SEED_FILE"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("STORE_DRIVER=mongo requires MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Notification.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.Escalation.Enabled && c.Escalation.SweepInterval <= 0 {
		return fmt.Errorf("ESCALATION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL is the lifetime of tokens issued by changectl.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}
