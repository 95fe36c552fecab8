package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "INVENTORY"
)

// expandableKeys may reference environment variables as ${VAR}. Only the braced
// form is replaced, so a literal $ in a password survives.
var expandableKeys = []string{"database.dsn", "rabbitmq.url", "otel.endpoint"}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envReference.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envReference.FindStringSubmatch(ref)[1])
	})
}

type Config struct {
	App struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"app"`
	Database struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	RabbitMQ struct {
		URL          string `mapstructure:"url"`
		Exchange     string `mapstructure:"exchange"`
		ReorderQueue string `mapstructure:"reorder_queue"`
	} `mapstructure:"rabbitmq"`
	Inventory struct {
		WithdrawAttempts int `mapstructure:"withdraw_attempts"`
		ExpiryWindowDays int `mapstructure:"expiry_window_days"`
	} `mapstructure:"inventory"`
	Otel struct {
		Endpoint string `mapstructure:"endpoint"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"otel"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:inventory.db?cache=shared")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "inventory")
	v.SetDefault("rabbitmq.reorder_queue", "inventory_reorder")
	v.SetDefault("inventory.withdraw_attempts", 3)
	v.SetDefault("inventory.expiry_window_days", 7)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("log.level", "info")
}

// Load reads configuration from defaults, an optional config.yaml in the working
// directory or ./config/, and INVENTORY_* environment variables, in increasing
// order of precedence.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) == 0 {
		paths = []string{".", "./config/"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range expandableKeys {
		v.Set(key, expandEnv(v.GetString(key)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Inventory.WithdrawAttempts < 1 {
		return fmt.Errorf("inventory.withdraw_attempts must be at least 1, got %d", c.Inventory.WithdrawAttempts)
	}
	if c.Inventory.ExpiryWindowDays < 1 {
		return fmt.Errorf("inventory.expiry_window_days must be at least 1, got %d", c.Inventory.ExpiryWindowDays)
	}
	return nil
}
