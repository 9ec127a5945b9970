// Package config loads the server configuration from flags, environment
// variables, an optional .env file and an optional YAML file, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "BOOKWORM"
	configName = "bookworm"

	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BodyLimit       int64         `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	SQLDSN        string `mapstructure:"sql_dsn"`
}

// MediaConfig configures the S3-compatible image store.
type MediaConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	UsePathStyle  bool   `mapstructure:"use_path_style"`
	MaxBytes      int64  `mapstructure:"max_bytes"`
}

// RedisConfig enables login throttling when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// RateLimitConfig bounds requests to the auth routes.
type RateLimitConfig struct {
	LoginLimit  int           `mapstructure:"login_limit"`
	LoginWindow time.Duration `mapstructure:"login_window"`
}

// TelemetryConfig enables OTLP export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LogConfig configures console logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KeepAliveConfig enables the periodic self-ping when URL is set.
type KeepAliveConfig struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Media     MediaConfig     `mapstructure:"media"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	KeepAlive KeepAliveConfig `mapstructure:"keepalive"`
}

// Unprefixed variable names kept for existing deployments.
var legacyEnv = map[string]string{
	"server.port":     "PORT",
	"store.mongo_uri": "MONGO_URI",
	"auth.jwt_secret": "JWT_SECRET",
	"keepalive.url":   "API_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.body_limit", 50<<20)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 360*time.Hour)
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "bookworm")
	v.SetDefault("store.sql_dsn", "file:bookworm.db")
	v.SetDefault("media.endpoint", "")
	v.SetDefault("media.region", "us-east-1")
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.access_key", "")
	v.SetDefault("media.secret_key", "")
	v.SetDefault("media.public_base_url", "")
	v.SetDefault("media.use_path_style", false)
	v.SetDefault("media.max_bytes", 10<<20)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("ratelimit.login_limit", 10)
	v.SetDefault("ratelimit.login_window", time.Minute)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("keepalive.url", "")
	v.SetDefault("keepalive.interval", 14*time.Minute)
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	flagSet.StringP("config", "c", "", "Path to a YAML config file")
	flagSet.Int("server.port", 3000, "HTTP listen port")
	flagSet.String("store.driver", DriverMongo, "Persistence backend: mongo, sqlite or postgres")
	flagSet.String("store.sql_dsn", "file:bookworm.db", "DSN for the sqlite or postgres backend")
	flagSet.String("log.level", "info", "Log level: debug, info, warn or error")
	flagSet.String("log.format", "text", "Log format: text or json")
	return flagSet
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	configFile := ""
	if flags != nil {
		configFile, _ = flags.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.BodyLimit <= 0 {
		add("server.body_limit must be positive")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			add("server.trusted_proxies entry %q is not an IP or CIDR", proxy)
		}
	}
	if c.Auth.JWTSecret == "" {
		add("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		add("auth.token_ttl must be positive")
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.MongoURI == "" {
			add("store.mongo_uri is required for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			add("store.mongo_database is required for the mongo driver")
		}
	case DriverSQLite, DriverPostgres:
		if c.Store.SQLDSN == "" {
			add("store.sql_dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		add("store.driver must be one of mongo, sqlite or postgres, got %q", c.Store.Driver)
	}

	if c.Media.Bucket == "" {
		add("media.bucket is required")
	}
	if c.Media.PublicBaseURL == "" {
		add("media.public_base_url is required")
	}
	if c.Media.MaxBytes <= 0 {
		add("media.max_bytes must be positive")
	}

	if c.Redis.Addr != "" && c.RateLimit.LoginWindow <= 0 {
		add("ratelimit.login_window must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be one of debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.KeepAlive.URL != "" && c.KeepAlive.Interval <= 0 {
		add("keepalive.interval must be positive")
	}

	return errors.Join(errs...)
}

// Addr is the listen address derived from the port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
