package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "PAIRCHAT"
	envConfigDefaultPath = "PAIRCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// setting is one config key with its default value.
type setting struct {
	key   string
	value any
}

// settings lists every key in file order. Durations are kept as strings so
// the written file stays readable.
func settings(cfg Config) []setting {
	return []setting{
		{"addr", cfg.Addr},
		{"read_header_timeout", cfg.ReadHeaderTimeout.String()},
		{"shutdown_timeout", cfg.ShutdownTimeout.String()},
		{"log_level", cfg.LogLevel},
		{"database_driver", cfg.DatabaseDriver},
		{"database_path", cfg.DatabasePath},
		{"database_url", cfg.DatabaseURL},
		{"broker", cfg.Broker},
		{"redis_url", cfg.RedisURL},
		{"jwt_secret", cfg.JWTSecret},
		{"jwt_issuer", cfg.JWTIssuer},
		{"jwt_audience", cfg.JWTAudience},
		{"jwt_ttl", cfg.JWTTTL.String()},
		{"max_message_bytes", cfg.MaxMessageBytes},
		{"session_buffer", cfg.SessionBuffer},
		{"max_frames_per_minute", cfg.MaxFramesPerMinute},
		{"allowed_origins", nonNil(cfg.AllowedOrigins)},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Load builds configuration from defaults, optional config file and env vars,
// and returns the resolved path. A missing file is created with defaults.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := resolveConfigPath(explicitPath)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Registering every key lets AutomaticEnv override keys absent from the file.
	for _, s := range settings(cfg) {
		v.SetDefault(s.key, s.value)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaultConfig(path, cfg); err != nil {
			warn(logger, err, path, "failed to write default config")
		} else if logger != nil {
			logger.Info().Str("path", path).Msg("created default config")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, path, fmt.Errorf("read config %s: %w", path, err)
		}
		warn(logger, err, path, "config file unavailable, using defaults and env")
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, path, nil
}

func warn(logger *zerolog.Logger, err error, path, msg string) {
	if logger != nil {
		logger.Warn().Err(err).Str("path", path).Msg(msg)
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, defaultConfigName)
	}
	return defaultConfigName
}

func writeDefaultConfig(path string, cfg Config) error {
	doc := &yaml.Node{
		Kind:        yaml.MappingNode,
		HeadComment: "pairchat configuration, generated " + time.Now().UTC().Format(time.DateOnly),
	}
	for _, s := range settings(cfg) {
		var val yaml.Node
		if err := val.Encode(s.value); err != nil {
			return fmt.Errorf("encode %s: %w", s.key, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: s.key}, &val)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
