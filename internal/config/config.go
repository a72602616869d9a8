package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Ingest        IngestConfig         `koanf:"ingest"`
	Query         QueryConfig          `koanf:"query"`
	Retention     RetentionConfig      `koanf:"retention"`
	Archive       *ArchiveConfig       `koanf:"archive"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

type DatabaseConfig struct {
	Host             string `koanf:"host" validate:"required"`
	Port             int    `koanf:"port" validate:"required"`
	User             string `koanf:"user" validate:"required"`
	Password         string `koanf:"password"`
	Name             string `koanf:"name" validate:"required"`
	SSLMode          string `koanf:"ssl_mode" validate:"required"`
	MaxConns         int    `koanf:"max_conns" validate:"required"`
	MinConns         int    `koanf:"min_conns"`
	ConnMaxLifetime  int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime  int    `koanf:"conn_max_idle_time" validate:"required"`
	OpTimeoutSeconds int    `koanf:"op_timeout_seconds"`
}

// URL renders the pgx connection string.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// OpTimeout bounds a single storage operation including the wait for a
// pooled connection.
func (d DatabaseConfig) OpTimeout() time.Duration {
	if d.OpTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.OpTimeoutSeconds) * time.Second
}

type IngestConfig struct {
	MaxBatchSize         int  `koanf:"max_batch_size"`
	MaxClockSkewSeconds  int  `koanf:"max_clock_skew_seconds"`
	AllowClientTimestamp bool `koanf:"allow_client_timestamp"`
}

func (i IngestConfig) BatchSize() int {
	if i.MaxBatchSize <= 0 {
		return 1000
	}
	return i.MaxBatchSize
}

func (i IngestConfig) ClockSkew() time.Duration {
	if i.MaxClockSkewSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(i.MaxClockSkewSeconds) * time.Second
}

type QueryConfig struct {
	MaxPageSize     int `koanf:"max_page_size"`
	DefaultPageSize int `koanf:"default_page_size"`
}

func (q QueryConfig) MaxPage() int {
	if q.MaxPageSize <= 0 {
		return 1000
	}
	return q.MaxPageSize
}

func (q QueryConfig) DefaultPage() int {
	if q.DefaultPageSize <= 0 {
		return 100
	}
	return q.DefaultPageSize
}

type RetentionConfig struct {
	Enabled              bool `koanf:"enabled"`
	SweepIntervalSeconds int  `koanf:"sweep_interval_seconds"`
	BatchSize            int  `koanf:"batch_size"`
}

func (r RetentionConfig) SweepInterval() time.Duration {
	if r.SweepIntervalSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

func (r RetentionConfig) Batch() int {
	if r.BatchSize <= 0 {
		return 1000
	}
	return r.BatchSize
}

type ArchiveConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

type ObservabilityConfig struct {
	Enabled     bool   `koanf:"enabled"`
	LicenseKey  string `koanf:"license_key"`
	ServiceName string `koanf:"service_name"`
	Environment string `koanf:"environment"`
}

// Validate checks that enabled observability carries a license key.
func (o *ObservabilityConfig) Validate() error {
	if o == nil || !o.Enabled {
		return nil
	}
	if o.LicenseKey == "" {
		return fmt.Errorf("observability enabled without license key")
	}
	return nil
}

// LoadConfig loads the configuration from environment variables using koanf.
func LoadConfig() (mainConfig *Config, err error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	k := koanf.New(".")
	err = k.Load(env.Provider("LOGWARD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LOGWARD_"))
	}), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load initial env variables")
	}

	mainConfig = &Config{}
	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not unmarshal mainconfig")
	}

	validate := validator.New()
	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not validate the struct")
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = &ObservabilityConfig{}
	}
	mainConfig.Observability.ServiceName = "logward"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	err = mainConfig.Observability.Validate()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid observability config")
	}

	return
}
