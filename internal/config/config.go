// Package config loads socialhunt settings from an optional YAML file and
// SOCIAL_HUNT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "SOCIAL_HUNT"

type Config struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	MinHostInterval time.Duration `mapstructure:"min_host_interval"`
	// RequestTimeout is the HTTP client ceiling; ProviderTimeout applies to
	// providers that do not declare their own.
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	AddonTimeout    time.Duration `mapstructure:"addon_timeout"`

	ProvidersFile string   `mapstructure:"providers_file"`
	PluginDir     string   `mapstructure:"plugin_dir"`
	SherlockFile  string   `mapstructure:"sherlock_file"`
	AddonsFile    string   `mapstructure:"addons_file"`
	EnabledAddons []string `mapstructure:"enabled_addons"`

	DemoMode bool `mapstructure:"demo_mode"`

	Tor    Tor    `mapstructure:"tor"`
	Server Server `mapstructure:"server"`
	Log    Log    `mapstructure:"log"`
}

type Tor struct {
	Enabled  bool   `mapstructure:"enabled"`
	ProxyURL string `mapstructure:"proxy_url"`
}

type Server struct {
	Listen         string `mapstructure:"listen"`
	AdminToken     string `mapstructure:"admin_token"`
	JobsDB         string `mapstructure:"jobs_db"`
	MaxUsernameLen int    `mapstructure:"max_username_len"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrency", 6)
	v.SetDefault("min_host_interval", "1.2s")
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("provider_timeout", "10s")
	v.SetDefault("addon_timeout", "0s")

	v.SetDefault("providers_file", "providers.yaml")
	v.SetDefault("plugin_dir", "plugins/providers")
	v.SetDefault("sherlock_file", "")
	v.SetDefault("addons_file", "addons.yaml")
	v.SetDefault("enabled_addons", []string{})

	v.SetDefault("demo_mode", false)

	v.SetDefault("tor.enabled", false)
	v.SetDefault("tor.proxy_url", "socks5://127.0.0.1:9050")

	v.SetDefault("server.listen", ":8000")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.jobs_db", "data/jobs.db")
	v.SetDefault("server.max_username_len", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "social_hunt.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads path, or ./config.yaml when path is empty and the file exists,
// then applies environment overrides such as SOCIAL_HUNT_MAX_CONCURRENCY or
// SOCIAL_HUNT_SERVER_ADMIN_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.MinHostInterval < 0 {
		errs = append(errs, fmt.Errorf("min_host_interval must not be negative, got %s", c.MinHostInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.ProviderTimeout < 0 || c.AddonTimeout < 0 {
		errs = append(errs, fmt.Errorf("timeouts must not be negative"))
	}
	if c.Server.MaxUsernameLen <= 0 {
		errs = append(errs, fmt.Errorf("server.max_username_len must be positive, got %d", c.Server.MaxUsernameLen))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
