package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
}

type HTTPConfig struct {
	Address     string   `yaml:"address"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.NotificationsTopic != ""
}

type BookingConfig struct {
	OperationTimeoutSeconds     int `yaml:"operation_timeout_seconds"`
	DecisionLockSeconds         int `yaml:"decision_lock_seconds"`
	AvailabilityCacheTTLSeconds int `yaml:"availability_cache_ttl_seconds"`
}

func (b BookingConfig) OperationTimeout() time.Duration {
	return time.Duration(b.OperationTimeoutSeconds) * time.Second
}

func (b BookingConfig) DecisionLockTTL() time.Duration {
	return time.Duration(b.DecisionLockSeconds) * time.Second
}

func (b BookingConfig) AvailabilityCacheTTL() time.Duration {
	return time.Duration(b.AvailabilityCacheTTLSeconds) * time.Second
}

type WorkerConfig struct {
	AuditIntervalMinutes int `yaml:"audit_interval_minutes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// LoadConfig reads the YAML file at path. Variables from a .env file in the
// working directory are loaded first and never override the environment.
// AUTH_JWT_SECRET, when set, replaces auth.jwt_secret.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "tourbooking-notifications"
	}
	if c.Booking.OperationTimeoutSeconds <= 0 {
		c.Booking.OperationTimeoutSeconds = 5
	}
	if c.Booking.DecisionLockSeconds <= 0 {
		c.Booking.DecisionLockSeconds = 10
	}
	if c.Booking.AvailabilityCacheTTLSeconds <= 0 {
		c.Booking.AvailabilityCacheTTLSeconds = 5
	}
	if c.Worker.AuditIntervalMinutes <= 0 {
		c.Worker.AuditIntervalMinutes = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "tourbooking"
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}
