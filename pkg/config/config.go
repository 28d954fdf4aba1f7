package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/storage"
)

// Backends selectable at startup
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"

	NotifyLog     = "log"
	NotifyAMQP    = "amqp"
	NotifyWebhook = "webhook"
)

// EnvConfigFile names an optional YAML file applied before the environment
const EnvConfigFile = "HOMESTEAD_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	Invitations   InvitationConfig    `yaml:"invitations"`
	Notify        NotifyConfig        `yaml:"notify"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL           string        `yaml:"url"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxLifetime   time.Duration `yaml:"max_lifetime"`
	MaxIdleTime   time.Duration `yaml:"max_idle_time"`
	RunMigrations bool          `yaml:"run_migrations"`
}

// CacheConfig selects and sizes the permission cache
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPoolSize int    `yaml:"redis_pool_size"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// AuthConfig holds token signing and password hashing settings
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// InvitationConfig controls invitation expiry and links
type InvitationConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	AcceptURL string        `yaml:"accept_url"`
}

// NotifyConfig selects the notification backend
type NotifyConfig struct {
	Backend       string `yaml:"backend"`
	AMQPURL       string `yaml:"amqp_url"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queue_size"`
}

// ThrottleConfig bounds credential attempts per client
type ThrottleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

// MaintenanceConfig schedules background cleanup jobs
type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron specs accept the robfig/cron descriptors such as "@every 15m"
	InvitationExpirySchedule string        `yaml:"invitation_expiry_schedule"`
	SessionPurgeSchedule     string        `yaml:"session_purge_schedule"`
	SessionRetention         time.Duration `yaml:"session_retention"`
	AuditPurgeSchedule       string        `yaml:"audit_purge_schedule"`
	// Zero keeps audit events forever
	AuditRetention time.Duration `yaml:"audit_retention"`
}

// ArchiveConfig sends audit events to S3 before the retention purge deletes
// them. An empty bucket purges without archiving.
type ArchiveConfig struct {
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	Prefix         string `yaml:"prefix"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			URL:           "postgres://localhost:5432/homestead?sslmode=disable",
			MaxConns:      20,
			MinConns:      2,
			Timeout:       10 * time.Second,
			MaxLifetime:   30 * time.Minute,
			MaxIdleTime:   5 * time.Minute,
			RunMigrations: true,
		},
		Cache: CacheConfig{
			Backend:       CacheMemory,
			TTL:           5 * time.Minute,
			Size:          10000,
			RedisDB:       -1,
			RedisPoolSize: 10,
			RedisPrefix:   "homestead:perm",
		},
		Auth: AuthConfig{
			Issuer:     "homestead",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			BcryptCost: 12,
		},
		Invitations: InvitationConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Backend:   NotifyLog,
			Workers:   4,
			QueueSize: 256,
		},
		Throttle: ThrottleConfig{
			Enabled:  true,
			Attempts: 10,
			Window:   time.Minute,
		},
		Maintenance: MaintenanceConfig{
			Enabled:                  true,
			InvitationExpirySchedule: "@every 15m",
			SessionPurgeSchedule:     "@daily",
			SessionRetention:         7 * 24 * time.Hour,
			AuditPurgeSchedule:       "@daily",
			AuditRetention:           365 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			S3Region: "us-east-1",
			Prefix:   "audit/",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "homestead",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file
// named by HOMESTEAD_CONFIG_FILE and then environment variables
func LoadConfig() (*Config, error) {
	return load(os.Getenv(EnvConfigFile))
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HOMESTEAD_HOST", s.Host)
	s.Port = getEnv("HOMESTEAD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("HOMESTEAD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("HOMESTEAD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("HOMESTEAD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("HOMESTEAD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("HOMESTEAD_HEALTH_PORT", s.HealthPort)

	d := &c.Database
	d.URL = getEnv("HOMESTEAD_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("HOMESTEAD_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("HOMESTEAD_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("HOMESTEAD_DATABASE_TIMEOUT", d.Timeout)
	d.RunMigrations = getEnvBool("HOMESTEAD_DATABASE_MIGRATE", d.RunMigrations)

	cache := &c.Cache
	cache.Backend = strings.ToLower(getEnv("HOMESTEAD_CACHE_BACKEND", cache.Backend))
	cache.TTL = getEnvDuration("HOMESTEAD_CACHE_TTL", cache.TTL)
	cache.Size = getEnvInt("HOMESTEAD_CACHE_SIZE", cache.Size)
	cache.RedisURL = getEnv("HOMESTEAD_REDIS_URL", cache.RedisURL)
	cache.RedisPassword = getEnv("HOMESTEAD_REDIS_PASSWORD", cache.RedisPassword)
	cache.RedisDB = getEnvInt("HOMESTEAD_REDIS_DB", cache.RedisDB)
	cache.RedisPoolSize = getEnvInt("HOMESTEAD_REDIS_POOL_SIZE", cache.RedisPoolSize)

	a := &c.Auth
	a.JWTSecret = getEnv("HOMESTEAD_JWT_SECRET", a.JWTSecret)
	a.Issuer = getEnv("HOMESTEAD_JWT_ISSUER", a.Issuer)
	a.AccessTTL = getEnvDuration("HOMESTEAD_ACCESS_TOKEN_TTL", a.AccessTTL)
	a.RefreshTTL = getEnvDuration("HOMESTEAD_REFRESH_TOKEN_TTL", a.RefreshTTL)
	a.BcryptCost = getEnvInt("HOMESTEAD_BCRYPT_COST", a.BcryptCost)

	c.Invitations.TTL = getEnvDuration("HOMESTEAD_INVITATION_TTL", c.Invitations.TTL)
	c.Invitations.AcceptURL = getEnv("HOMESTEAD_INVITATION_ACCEPT_URL", c.Invitations.AcceptURL)

	n := &c.Notify
	n.Backend = strings.ToLower(getEnv("HOMESTEAD_NOTIFY_BACKEND", n.Backend))
	n.AMQPURL = getEnv("HOMESTEAD_AMQP_URL", n.AMQPURL)
	n.WebhookURL = getEnv("HOMESTEAD_WEBHOOK_URL", n.WebhookURL)
	n.WebhookSecret = getEnv("HOMESTEAD_WEBHOOK_SECRET", n.WebhookSecret)
	n.Workers = getEnvInt("HOMESTEAD_NOTIFY_WORKERS", n.Workers)
	n.QueueSize = getEnvInt("HOMESTEAD_NOTIFY_QUEUE_SIZE", n.QueueSize)

	c.Throttle.Enabled = getEnvBool("HOMESTEAD_THROTTLE_ENABLED", c.Throttle.Enabled)
	c.Throttle.Attempts = getEnvInt("HOMESTEAD_THROTTLE_ATTEMPTS", c.Throttle.Attempts)
	c.Throttle.Window = getEnvDuration("HOMESTEAD_THROTTLE_WINDOW", c.Throttle.Window)

	m := &c.Maintenance
	m.Enabled = getEnvBool("HOMESTEAD_MAINTENANCE_ENABLED", m.Enabled)
	m.InvitationExpirySchedule = getEnv("HOMESTEAD_INVITATION_EXPIRY_SCHEDULE", m.InvitationExpirySchedule)
	m.SessionPurgeSchedule = getEnv("HOMESTEAD_SESSION_PURGE_SCHEDULE", m.SessionPurgeSchedule)
	m.SessionRetention = getEnvDuration("HOMESTEAD_SESSION_RETENTION", m.SessionRetention)
	m.AuditPurgeSchedule = getEnv("HOMESTEAD_AUDIT_PURGE_SCHEDULE", m.AuditPurgeSchedule)
	m.AuditRetention = getEnvDuration("HOMESTEAD_AUDIT_RETENTION", m.AuditRetention)

	ar := &c.Archive
	ar.S3Bucket = getEnv("HOMESTEAD_ARCHIVE_S3_BUCKET", ar.S3Bucket)
	ar.S3Region = getEnv("HOMESTEAD_ARCHIVE_S3_REGION", ar.S3Region)
	ar.S3Endpoint = getEnv("HOMESTEAD_ARCHIVE_S3_ENDPOINT", ar.S3Endpoint)
	ar.S3AccessKey = getEnv("HOMESTEAD_ARCHIVE_S3_ACCESS_KEY", ar.S3AccessKey)
	ar.S3SecretKey = getEnv("HOMESTEAD_ARCHIVE_S3_SECRET_KEY", ar.S3SecretKey)
	ar.S3UsePathStyle = getEnvBool("HOMESTEAD_ARCHIVE_S3_USE_PATH_STYLE", ar.S3UsePathStyle)
	ar.Prefix = getEnv("HOMESTEAD_ARCHIVE_PREFIX", ar.Prefix)

	o := &c.Observability
	o.LogLevel = getEnv("HOMESTEAD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("HOMESTEAD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("HOMESTEAD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("HOMESTEAD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("HOMESTEAD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("HOMESTEAD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("HOMESTEAD_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return errors.New("database URL is required")
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Auth.AccessTTL > c.Auth.RefreshTTL {
		return errors.New("access token TTL must not exceed refresh token TTL")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d out of range 4-31", c.Auth.BcryptCost)
	}

	if c.Invitations.TTL <= 0 {
		return errors.New("invitation TTL must be positive")
	}
	if c.Invitations.AcceptURL != "" {
		if u, err := url.Parse(c.Invitations.AcceptURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid invitation accept URL: %s", c.Invitations.AcceptURL)
		}
	}

	switch c.Notify.Backend {
	case NotifyLog:
	case NotifyAMQP:
		if c.Notify.AMQPURL == "" {
			return errors.New("AMQP URL is required for the amqp notify backend")
		}
	case NotifyWebhook:
		if u, err := url.Parse(c.Notify.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook URL: %q", c.Notify.WebhookURL)
		}
	default:
		return fmt.Errorf("invalid notify backend: %s (must be log, amqp or webhook)", c.Notify.Backend)
	}

	if c.Throttle.Enabled && (c.Throttle.Attempts <= 0 || c.Throttle.Window <= 0) {
		return errors.New("throttle attempts and window must be positive")
	}
	if c.Maintenance.AuditRetention < 0 {
		return errors.New("audit retention must not be negative")
	}
	if c.Archive.S3Bucket != "" && c.Archive.S3Region == "" {
		return errors.New("archive region is required when an archive bucket is set")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Storage returns the connection settings for the storage layer
func (c *Config) Storage() storage.Config {
	return storage.Config{
		PostgresURL:         c.Database.URL,
		PostgresMaxConns:    c.Database.MaxConns,
		PostgresMinConns:    c.Database.MinConns,
		PostgresTimeout:     c.Database.Timeout,
		PostgresMaxLifetime: c.Database.MaxLifetime,
		PostgresMaxIdleTime: c.Database.MaxIdleTime,
		RedisURL:            c.Cache.RedisURL,
		RedisPassword:       c.Cache.RedisPassword,
		RedisDB:             c.Cache.RedisDB,
		RedisMaxRetries:     3,
		RedisPoolSize:       c.Cache.RedisPoolSize,
		S3Endpoint:          c.Archive.S3Endpoint,
		S3Region:            c.Archive.S3Region,
		S3Bucket:            c.Archive.S3Bucket,
		S3AccessKey:         c.Archive.S3AccessKey,
		S3SecretKey:         c.Archive.S3SecretKey,
		S3UsePathStyle:      c.Archive.S3UsePathStyle,
	}
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
