package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	want := Default()
	assert.Equal(t, want.Addr, cfg.Addr)
	assert.Equal(t, want.JWTTTL, cfg.JWTTTL)
	assert.Equal(t, want.SessionBuffer, cfg.SessionBuffer)
	assert.Equal(t, want.Broker, cfg.Broker)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file is written")
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\nbroker: redis\njwt_ttl: 1h\n"), 0o600))

	t.Setenv("PAIRCHAT_ADDR", ":9100")
	t.Setenv("PAIRCHAT_SESSION_BUFFER", "8")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr, "env beats file")
	assert.Equal(t, BrokerRedis, cfg.Broker, "file beats defaults")
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, 8, cfg.SessionBuffer)
	assert.Equal(t, Default().DatabaseDriver, cfg.DatabaseDriver)
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", MaxFramesPerMinute: 5})

	assert.Equal(t, ":1", cfg.Addr)
	assert.Equal(t, 5, cfg.MaxFramesPerMinute)
	assert.Equal(t, Default().JWTSecret, cfg.JWTSecret)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := map[string]func(*Config){
		"unknown driver":      func(c *Config) { c.DatabaseDriver = "oracle" },
		"postgres no url":     func(c *Config) { c.DatabaseDriver = DriverPostgres },
		"unknown broker":      func(c *Config) { c.Broker = "kafka" },
		"redis no url":        func(c *Config) { c.Broker = BrokerRedis; c.RedisURL = "" },
		"empty secret":        func(c *Config) { c.JWTSecret = "" },
		"non-positive ttl":    func(c *Config) { c.JWTTTL = 0 },
		"sqlite without path": func(c *Config) { c.DatabasePath = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
