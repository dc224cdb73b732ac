package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"kurodrive/internal/auth"
	"kurodrive/internal/blob/s3"
)

const envPrefix = "KURODRIVE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Auth     auth.Config    `mapstructure:"auth"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Share    ShareConfig    `mapstructure:"share"`
	Search   SearchConfig   `mapstructure:"search"`
	Activity ActivityConfig `mapstructure:"activity"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"gt=0"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
}

// DSN: строка подключения в формате lib/pq.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL: та же строка в виде URL, её ожидает golang-migrate.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type MetadataConfig struct {
	Type string `mapstructure:"type" validate:"oneof=postgres badger"`
	// CascadeBatch: сколько записей удаляет один проход каскадного удаления.
	CascadeBatch int          `mapstructure:"cascade_batch" validate:"gt=0"`
	Badger       BadgerConfig `mapstructure:"badger"`
}

type BadgerConfig struct {
	// Пустой путь означает хранилище в памяти.
	Path            string `mapstructure:"path"`
	SearchScanLimit int    `mapstructure:"search_scan_limit" validate:"gt=0"`
}

type BlobConfig struct {
	Type    string        `mapstructure:"type" validate:"oneof=s3 localfs"`
	Policy  string        `mapstructure:"policy" validate:"oneof=best_effort strict"`
	Workers int           `mapstructure:"workers" validate:"gt=0"`
	S3      s3.Config     `mapstructure:"s3"`
	LocalFS LocalFSConfig `mapstructure:"localfs"`
}

type LocalFSConfig struct {
	Root string `mapstructure:"root"`
}

type QuotaConfig struct {
	DefaultLimit int64 `mapstructure:"default_limit" validate:"gt=0"`
}

type ShareConfig struct {
	BcryptCost    int           `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" validate:"gt=0"`
}

type SearchConfig struct {
	MaxResults int `mapstructure:"max_results" validate:"gt=0,lte=10000"`
}

type ActivityConfig struct {
	Buffer int `mapstructure:"buffer" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load читает конфигурацию из файла (если указан) и переменных окружения
// KURODRIVE_*, подставляет значения по умолчанию и проверяет результат.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
