package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATCORE_DATABASE_DRIVER.
const EnvPrefix = "CHATCORE"

type Config struct {
	AppName      string             `mapstructure:"app_name"`
	Env          string             `mapstructure:"env"`
	Log          LogConfig          `mapstructure:"log"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Security     SecurityConfig     `mapstructure:"security"`
	Verification VerificationConfig `mapstructure:"verification"`
	Notify       NotifyConfig       `mapstructure:"notify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

type SecurityConfig struct {
	EncryptionKey string   `mapstructure:"encryption_key"`
	LegacyKeys    []string `mapstructure:"legacy_keys"`
	CodeHashCost  int      `mapstructure:"code_hash_cost"`
}

type VerificationConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	CodeLength     int           `mapstructure:"code_length"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	PurgeInterval  time.Duration `mapstructure:"purge_interval"`
	PurgeRetention time.Duration `mapstructure:"purge_retention"`
}

type NotifyConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	RatePerSecond  int           `mapstructure:"rate_per_second"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "chatcore")
	v.SetDefault("env", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/chatcore.db")
	v.SetDefault("database.url", "")

	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.legacy_keys", []string{})
	v.SetDefault("security.code_hash_cost", 10)

	v.SetDefault("verification.ttl", 2*time.Minute)
	v.SetDefault("verification.code_length", 5)
	v.SetDefault("verification.max_attempts", 3)
	v.SetDefault("verification.purge_interval", 10*time.Minute)
	v.SetDefault("verification.purge_retention", 24*time.Hour)

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.rate_per_second", 10)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("notify.initial_backoff", 500*time.Millisecond)
	v.SetDefault("notify.send_timeout", 10*time.Second)
}

// Load reads defaults, then the optional config file at path, then
// CHATCORE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Security.EncryptionKey == "" {
		errs = append(errs, errors.New("security.encryption_key is required"))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Verification.CodeLength < 4 {
		errs = append(errs, errors.New("verification.code_length must be at least 4"))
	}
	if c.Verification.MaxAttempts < 1 {
		errs = append(errs, errors.New("verification.max_attempts must be positive"))
	}
	if c.Verification.TTL <= 0 {
		errs = append(errs, errors.New("verification.ttl must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
