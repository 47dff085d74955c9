package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Prune policies for failed push sends.
const (
	PrunePolicyAll  = "all"
	PrunePolicyGone = "gone"
)

// Storage drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

// DefaultJWTSecret is the placeholder shipped in config files. It is never used to sign tokens.
const DefaultJWTSecret = "change-me-secret"

// Config holds all runtime configuration knobs for the push service.
type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Push struct {
		VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
		VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
		Subscriber      string        `mapstructure:"subscriber"`
		TTL             int           `mapstructure:"ttl"`
		Urgency         string        `mapstructure:"urgency"`
		RequestTimeout  time.Duration `mapstructure:"request_timeout"`
		Concurrency     int           `mapstructure:"concurrency"`
		PrunePolicy     string        `mapstructure:"prune_policy"`
		Icon            string        `mapstructure:"icon"`
		Badge           string        `mapstructure:"badge"`
		Tag             string        `mapstructure:"tag"`
		DefaultURL      string        `mapstructure:"default_url"`
	} `mapstructure:"push"`
	Storage struct {
		Driver     string `mapstructure:"driver"`
		Path       string `mapstructure:"path"`
		ImportJSON string `mapstructure:"import_json"`
	} `mapstructure:"storage"`
	Frontend struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"frontend"`
	Auth struct {
		Enabled   bool          `mapstructure:"enabled"`
		Password  string        `mapstructure:"password"`
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	RateLimit struct {
		SubscribePerMinute int `mapstructure:"subscribe_per_minute"`
		Burst              int `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
}

// Load reads the configuration from .env, disk and environment using Viper.
// An empty path skips the config file entirely.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			// a missing file is fine, env-only deployments are common
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("decode default config: %v", err))
	}
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("znainik")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Push.PrunePolicy) {
	case PrunePolicyAll, PrunePolicyGone:
	default:
		return fmt.Errorf("push.prune_policy must be %q or %q, got %q", PrunePolicyAll, PrunePolicyGone, c.Push.PrunePolicy)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case DriverBolt, DriverSQLite, DriverJSON:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Push.Concurrency < 0 {
		return fmt.Errorf("push.concurrency must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "example@example.com")
	v.SetDefault("push.ttl", 60*60*24)
	v.SetDefault("push.urgency", "normal")
	v.SetDefault("push.request_timeout", "10s")
	v.SetDefault("push.concurrency", 0)
	v.SetDefault("push.prune_policy", PrunePolicyAll)
	v.SetDefault("push.icon", "/favicon.ico")
	v.SetDefault("push.badge", "/favicon.ico")
	v.SetDefault("push.tag", "znainik-notification")
	v.SetDefault("push.default_url", "/")

	v.SetDefault("storage.driver", DriverBolt)
	v.SetDefault("storage.path", "./data/subscriptions.db")
	v.SetDefault("storage.import_json", "")

	v.SetDefault("frontend.dir", "./public")

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("ratelimit.subscribe_per_minute", 30)
	v.SetDefault("ratelimit.burst", 10)
}
