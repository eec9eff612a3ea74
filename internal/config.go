package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DeliveryModeSMTP    = "smtp"
	DeliveryModeLogOnly = "log_only"

	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"

	DirectoryBackendLocal = "local"
	DirectoryBackendHTTP  = "http"
)

type Config struct {
	AppEnv        string              `mapstructure:"app_env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Session       SessionConfig       `mapstructure:"session"`
	Security      SecurityConfig      `mapstructure:"security"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Mail          MailConfig          `mapstructure:"mail"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	LoginRatePerSec   int           `mapstructure:"login_rate_per_sec"`
	LoginBurst        int           `mapstructure:"login_burst"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SessionConfig struct {
	Backend              string        `mapstructure:"backend"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RegenerationInterval time.Duration `mapstructure:"regeneration_interval"`
	RegenerationGrace    time.Duration `mapstructure:"regeneration_grace"`
	StrictFingerprint    bool          `mapstructure:"strict_fingerprint"`
}

type SecurityConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	BCryptCost    int    `mapstructure:"bcrypt_cost"`
}

// DirectoryConfig selects the identity provider. The local backend checks
// bcrypt hashes in the identities table; the http backend calls a remote
// directory service at URL.
type DirectoryConfig struct {
	Backend string        `mapstructure:"backend"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotificationConfig struct {
	DeliveryMode       string        `mapstructure:"delivery_mode"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"`
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queue_size"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	RedeliveryInterval time.Duration `mapstructure:"redelivery_interval"`
	RedeliveryRate     float64       `mapstructure:"redelivery_rate"`
	PendingStaleAfter  time.Duration `mapstructure:"pending_stale_after"`
}

type MailConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	BaseURL     string `mapstructure:"base_url"`
}

type AuditConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ApplyDefaults fills zero values. Delivery mode falls back to log_only
// outside production so test environments never send real mail by accident.
func (c *Config) ApplyDefaults() {
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Server.LoginRatePerSec == 0 {
		c.Server.LoginRatePerSec = 1
	}
	if c.Server.LoginBurst == 0 {
		c.Server.LoginBurst = 5
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "fm:session:"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = SessionBackendRedis
	}
	if c.Session.Timeout == 0 {
		c.Session.Timeout = 30 * time.Minute
	}
	if c.Session.RegenerationInterval == 0 {
		c.Session.RegenerationInterval = 15 * time.Minute
	}
	if c.Session.RegenerationGrace == 0 {
		c.Session.RegenerationGrace = 30 * time.Second
	}
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 12
	}
	if c.Directory.Backend == "" {
		c.Directory.Backend = DirectoryBackendLocal
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 5 * time.Second
	}
	if c.Notification.DeliveryMode == "" {
		if c.IsProduction() {
			c.Notification.DeliveryMode = DeliveryModeSMTP
		} else {
			c.Notification.DeliveryMode = DeliveryModeLogOnly
		}
	}
	if c.Notification.SendTimeout == 0 {
		c.Notification.SendTimeout = 10 * time.Second
	}
	if c.Notification.Workers == 0 {
		c.Notification.Workers = 4
	}
	if c.Notification.QueueSize == 0 {
		c.Notification.QueueSize = 100
	}
	if c.Notification.MaxAttempts == 0 {
		c.Notification.MaxAttempts = 3
	}
	if c.Notification.RedeliveryInterval == 0 {
		c.Notification.RedeliveryInterval = time.Minute
	}
	if c.Notification.RedeliveryRate == 0 {
		c.Notification.RedeliveryRate = 2
	}
	if c.Audit.Timeout == 0 {
		c.Audit.Timeout = 3 * time.Second
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// LoadConfigFromEnv builds the configuration from plain environment variables
// for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			OpenAPIPath:       getEnv("HTTP_OPENAPI_PATH", "./api/openapi.yml"),
			LoginRatePerSec:   getEnvAsInt("HTTP_LOGIN_RATE_PER_SEC", 1),
			LoginBurst:        getEnvAsInt("HTTP_LOGIN_BURST", 5),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnvAsInt("REDIS_PORT", 6379),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "fm:session:"),
		},
		Session: SessionConfig{
			Backend:              getEnv("SESSION_BACKEND", SessionBackendRedis),
			Timeout:              getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
			RegenerationInterval: getEnvAsDuration("SESSION_REGENERATION_INTERVAL", 15*time.Minute),
			RegenerationGrace:    getEnvAsDuration("SESSION_REGENERATION_GRACE", 30*time.Second),
			StrictFingerprint:    getEnvAsBool("SESSION_STRICT_FINGERPRINT", false),
		},
		Security: SecurityConfig{
			SessionSecret: getEnv("SECURITY_SESSION_SECRET", ""),
			BCryptCost:    getEnvAsInt("SECURITY_BCRYPT_COST", 12),
		},
		Directory: DirectoryConfig{
			Backend: getEnv("DIRECTORY_BACKEND", DirectoryBackendLocal),
			URL:     getEnv("DIRECTORY_URL", ""),
			APIKey:  getEnv("DIRECTORY_API_KEY", ""),
			Timeout: getEnvAsDuration("DIRECTORY_TIMEOUT", 5*time.Second),
		},
		Notification: NotificationConfig{
			DeliveryMode:       getEnv("NOTIFICATION_DELIVERY_MODE", ""),
			SendTimeout:        getEnvAsDuration("NOTIFICATION_SEND_TIMEOUT", 10*time.Second),
			Workers:            getEnvAsInt("NOTIFICATION_WORKERS", 4),
			QueueSize:          getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 100),
			MaxAttempts:        getEnvAsInt("NOTIFICATION_MAX_ATTEMPTS", 3),
			RedeliveryInterval: getEnvAsDuration("NOTIFICATION_REDELIVERY_INTERVAL", time.Minute),
			PendingStaleAfter:  getEnvAsDuration("NOTIFICATION_PENDING_STALE_AFTER", 0),
		},
		Mail: MailConfig{
			Host:        getEnv("MAIL_HOST", ""),
			Port:        getEnvAsInt("MAIL_PORT", 587),
			Username:    getEnv("MAIL_USERNAME", ""),
			Password:    getEnv("MAIL_PASSWORD", ""),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", ""),
			FromName:    getEnv("MAIL_FROM_NAME", "Facilities Maintenance"),
			BaseURL:     getEnv("MAIL_BASE_URL", ""),
		},
		Audit: AuditConfig{
			Timeout: getEnvAsDuration("AUDIT_TIMEOUT", 3*time.Second),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Directory.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("directory config: %v", err))
	}

	if err := c.Notification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if c.Notification.DeliveryMode == DeliveryModeSMTP {
		if err := c.Mail.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("mail config: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *SessionConfig) Validate() error {
	switch c.Backend {
	case SessionBackendRedis, SessionBackendMemory:
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RegenerationInterval <= 0 || c.RegenerationInterval >= c.Timeout {
		return errors.New("regeneration_interval must be positive and shorter than timeout")
	}
	if c.RegenerationGrace < 0 {
		return errors.New("regeneration_grace cannot be negative")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *DirectoryConfig) Validate() error {
	switch c.Backend {
	case DirectoryBackendLocal:
	case DirectoryBackendHTTP:
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("url %q must be an absolute URL for the http backend", c.URL)
		}
	default:
		return fmt.Errorf("unknown directory backend %q", c.Backend)
	}
	return nil
}

func (c *NotificationConfig) Validate() error {
	switch c.DeliveryMode {
	case DeliveryModeSMTP, DeliveryModeLogOnly:
	default:
		return fmt.Errorf("unknown delivery_mode %q (want %q or %q)", c.DeliveryMode, DeliveryModeSMTP, DeliveryModeLogOnly)
	}
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return errors.New("workers and queue_size must be positive")
	}
	if c.SendTimeout <= 0 {
		return errors.New("send_timeout must be positive")
	}
	return nil
}

func (c *MailConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required for smtp delivery")
	}
	if c.FromAddress == "" {
		return errors.New("from_address is required for smtp delivery")
	}
	return nil
}
