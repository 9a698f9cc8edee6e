package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mm-engine/internal/autocalc"
	"mm-engine/internal/logging"
)

// AppConfig is the process-wide configuration: the on-disk portion plus
// environment overrides for secrets. The on-disk portion is what
// hot-reload watches; credentials are never reloaded from disk.
type AppConfig struct {
	Env string `yaml:"env"`

	Log      logging.Config `yaml:"log"`
	Metrics  ServerConfig    `yaml:"metrics"`
	HTTP     ServerConfig    `yaml:"http"`
	Database DatabaseConfig  `yaml:"database"`
	Exchange ExchangeConfig  `yaml:"exchange"`

	Presets autocalc.PresetTable `yaml:"presets"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL             string `yaml:"url"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DB              string `yaml:"db"`
	QueueSize       int    `yaml:"queueSize"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
}

// DSN builds a postgres connection string, preferring URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, d.Port, d.DB)
}

type ExchangeConfig struct {
	APIKey     string `yaml:"apiKey"`
	SecretKey  string `yaml:"secretKey"`
	Passphrase string `yaml:"passphrase"`
	BaseURL    string `yaml:"baseURL"`
	Simulated  bool   `yaml:"simulated"`
}

func DefaultConfig() AppConfig {
	return AppConfig{
		Env:     "development",
		Log:     logging.DefaultConfig(),
		Metrics: ServerConfig{Addr: ":9090"},
		HTTP:    ServerConfig{Addr: ":8090"},
		Presets: autocalc.DefaultPresetTable(),
	}
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("BITGET_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BITGET_SECRET_KEY"); v != "" {
		cfg.Exchange.SecretKey = v
	}
	if v := os.Getenv("BITGET_PASSPHRASE"); v != "" {
		cfg.Exchange.Passphrase = v
	}
	if v := os.Getenv("BITGET_API_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("BITGET_SIMULATED"); v == "1" {
		cfg.Exchange.Simulated = true
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	} else {
		if v := os.Getenv("POSTGRES_HOST"); v != "" {
			cfg.Database.Host = v
		}
		if v := os.Getenv("POSTGRES_PORT"); v != "" {
			cfg.Database.Port = v
		}
		if v := os.Getenv("POSTGRES_USER"); v != "" {
			cfg.Database.User = v
		}
		if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
			cfg.Database.Password = v
		}
		if v := os.Getenv("POSTGRES_DB"); v != "" {
			cfg.Database.DB = v
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// Validate enforces the ambient fields' shape; the strategy config
// validation rules live in internal/strategy's config manager.
func Validate(cfg AppConfig) error {
	if cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "" || cfg.Exchange.Passphrase == "" {
		return fmt.Errorf("exchange credentials are required (BITGET_API_KEY/BITGET_SECRET_KEY/BITGET_PASSPHRASE)")
	}
	if cfg.Database.URL == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database connection (DATABASE_URL or POSTGRES_* tuple) is required")
	}
	switch strings.ToUpper(cfg.Log.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	case "":
		cfg.Log.Level = "info"
	default:
		return fmt.Errorf("LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Log.Level)
	}
	return nil
}
