// Package config loads the service settings from flags, environment variables and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/ussdflow/internal/logging"
)

// Defaults applied when neither a flag, an environment variable nor the config file sets a value.
const (
	DefaultPort               = 3000
	DefaultEnv                = "development"
	DefaultFlowsPath          = "./flows"
	DefaultHelpersPath        = "./helpers"
	DefaultRedisHost          = "localhost"
	DefaultRedisPort          = 6379
	DefaultLogLevel           = "info"
	DefaultLogFormat          = logging.FormatText
	DefaultSessionTimeout     = 120 * time.Second
	DefaultMaxMenuLength      = 160
	DefaultMaxConcurrentTasks = 5
)

// Config is the resolved service configuration.
type Config struct {
	Port        int
	Env         string
	FlowsPath   string
	HelpersPath string

	Redis RedisConfig

	LogLevel  string
	LogFormat string

	SessionTimeout     time.Duration
	MaxMenuLength      int
	ActiveFlow         string
	MaxConcurrentTasks int

	// SerializeSessions enables per-session locking around each request.
	SerializeSessions bool
	// EncryptionKey, when set, seals session records at rest (hex or base64, 32 bytes).
	EncryptionKey string
}

// RedisConfig selects and configures the session backing store.
type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	DB             int
	UseMemoryStore bool
}

// Addr returns the host:port of the Redis server.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, DefaultEnv)
}

// SetupFlags registers the configuration flags on cmd.
// Every flag can also be set through the environment variable of the same name in
// upper snake case (e.g. --flows-path and FLOWS_PATH).
func SetupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "Path to config file (yaml, json or toml).")
	f.Int("port", DefaultPort, "HTTP port")
	f.String("env", DefaultEnv, "environment name; development enables the in-memory store")
	f.String("flows-path", DefaultFlowsPath, "directory holding flow documents")
	f.String("helpers-path", DefaultHelpersPath, "directory holding helper manifests")
	f.String("redis-host", DefaultRedisHost, "redis host")
	f.Int("redis-port", DefaultRedisPort, "redis port")
	f.String("redis-password", "", "redis password")
	f.Int("redis-db", 0, "redis database")
	f.Bool("use-memory-store", false, "keep sessions in process memory instead of redis")
	f.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	f.String("log-format", DefaultLogFormat, "log format (text, json)")
	f.Int("session-timeout", int(DefaultSessionTimeout/time.Second), "idle session lifetime in seconds")
	f.Int("max-menu-length", DefaultMaxMenuLength, "menu length that triggers a warning")
	f.String("active-flow", "", "flow served by the gateway routes")
	f.Int("max-concurrent-tasks", DefaultMaxConcurrentTasks, "task queue concurrency")
	f.Bool("serialize-sessions", false, "serialize concurrent requests of one session")
	f.String("session-encryption-key", "", "AES-256 key used to encrypt sessions at rest")
}

// Load resolves the configuration for cmd. Precedence, highest first: explicitly set
// flags, environment variables, the config file, flag defaults.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("env", "APP_ENV", "ENV"); err != nil {
		return nil, err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	c := &Config{
		Port:        v.GetInt("port"),
		Env:         v.GetString("env"),
		FlowsPath:   absPath(v.GetString("flows-path")),
		HelpersPath: absPath(v.GetString("helpers-path")),
		Redis: RedisConfig{
			Host:     v.GetString("redis-host"),
			Port:     v.GetInt("redis-port"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
		},
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
		SessionTimeout:     time.Duration(v.GetInt("session-timeout")) * time.Second,
		MaxMenuLength:      v.GetInt("max-menu-length"),
		ActiveFlow:         v.GetString("active-flow"),
		MaxConcurrentTasks: v.GetInt("max-concurrent-tasks"),
		SerializeSessions:  v.GetBool("serialize-sessions"),
		EncryptionKey:      v.GetString("session-encryption-key"),
	}
	c.Redis.UseMemoryStore = v.GetBool("use-memory-store") || c.IsDevelopment()
	return c
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Validate checks the configuration. Missing optional values are reported as warnings
// and replaced by their defaults; anything the service cannot start without is joined
// into the returned error.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []error

	if c.FlowsPath == "" || c.HelpersPath == "" {
		errs = append(errs, errors.New("missing required paths: flowsPath and helpersPath must be set"))
	}
	if c.ActiveFlow == "" {
		errs = append(errs, errors.New("missing required configuration: ussd.activeFlow (ACTIVE_FLOW)"))
	}
	if c.Redis.Host == "" && !c.Redis.UseMemoryStore {
		errs = append(errs, errors.New("redis configuration is incomplete: set REDIS_HOST or USE_MEMORY_STORE"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if _, lerr := logging.ParseLevel(c.LogLevel); lerr != nil {
		errs = append(errs, lerr)
	}

	if c.SessionTimeout <= 0 {
		warnings = append(warnings, "session timeout is missing, using default of 120 seconds")
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MaxMenuLength <= 0 {
		warnings = append(warnings, "max menu length is missing, using default of 160 characters")
		c.MaxMenuLength = DefaultMaxMenuLength
	}
	if c.MaxConcurrentTasks <= 0 {
		warnings = append(warnings, "max concurrent tasks is missing, using default of 5")
		c.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}

	return warnings, errors.Join(errs...)
}
