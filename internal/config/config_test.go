package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/internal/config"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	config.SetupFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := config.Load(newCommand(t))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 120*time.Second, cfg.SessionTimeout)
	assert.Equal(t, 160, cfg.MaxMenuLength)
	assert.Equal(t, 5, cfg.MaxConcurrentTasks)
	assert.True(t, filepath.IsAbs(cfg.FlowsPath))
	assert.True(t, cfg.Redis.UseMemoryStore, "development implies the memory store")
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "8081")
	t.Setenv("ACTIVE_FLOW", "bank")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("SESSION_TIMEOUT", "30")
	t.Setenv("SERIALIZE_SESSIONS", "true")

	cfg, err := config.Load(newCommand(t))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "bank", cfg.ActiveFlow)
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, 30*time.Second, cfg.SessionTimeout)
	assert.True(t, cfg.SerializeSessions)
	assert.False(t, cfg.Redis.UseMemoryStore)
}

func TestLoad_FlagBeatsEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")

	cfg, err := config.Load(newCommand(t, "--port", "9090"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(t.TempDir(), "ussdflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("active-flow: telco\nmax-menu-length: 182\nuse-memory-store: true\n"), 0o600))

	cfg, err := config.Load(newCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "telco", cfg.ActiveFlow)
	assert.Equal(t, 182, cfg.MaxMenuLength)
	assert.True(t, cfg.Redis.UseMemoryStore)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("active-flow: [unterminated"), 0o600))

	_, err := config.Load(newCommand(t, "--config", path))
	assert.Error(t, err)
}

func valid() *config.Config {
	return &config.Config{
		Port:               3000,
		FlowsPath:          "/srv/flows",
		HelpersPath:        "/srv/helpers",
		Redis:              config.RedisConfig{Host: "localhost", Port: 6379},
		LogLevel:           "info",
		SessionTimeout:     time.Minute,
		MaxMenuLength:      160,
		ActiveFlow:         "bank",
		MaxConcurrentTasks: 5,
	}
}

func TestValidate_OK(t *testing.T) {
	warnings, err := valid().Validate()
	assert.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidate_Errors(t *testing.T) {
	cfg := valid()
	cfg.FlowsPath = ""
	cfg.ActiveFlow = ""
	cfg.Redis.Host = ""
	cfg.LogLevel = "verbose"

	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flowsPath and helpersPath")
	assert.Contains(t, err.Error(), "activeFlow")
	assert.Contains(t, err.Error(), "REDIS_HOST")
	assert.Contains(t, err.Error(), "verbose")
}

func TestValidate_MemoryStoreNeedsNoRedis(t *testing.T) {
	cfg := valid()
	cfg.Redis.Host = ""
	cfg.Redis.UseMemoryStore = true

	_, err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_WarningsApplyDefaults(t *testing.T) {
	cfg := valid()
	cfg.SessionTimeout = 0
	cfg.MaxMenuLength = 0

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
	assert.Equal(t, config.DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, config.DefaultMaxMenuLength, cfg.MaxMenuLength)
}
