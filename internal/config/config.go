// Package config loads the crucible configuration from defaults, an optional
// YAML file and CRUCIBLE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/adapters/process"
	"github.com/aretw0/crucible/pkg/adapters/redis"
	"github.com/aretw0/crucible/pkg/workspace"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when present in the working directory.
const DefaultFile = "crucible.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRUCIBLE_"

// Config is the resolved configuration of a crucible process.
type Config struct {
	Workspace        string        `mapstructure:"workspace" yaml:"workspace"`
	Tool             string        `mapstructure:"tool" yaml:"tool"`
	ToolsFile        string        `mapstructure:"tools_file" yaml:"tools_file"`
	GracePeriod      time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	MaxArtifactBytes int           `mapstructure:"max_artifact_bytes" yaml:"max_artifact_bytes"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat        string        `mapstructure:"log_format" yaml:"log_format"`
	HTTP             HTTPConfig    `mapstructure:"http" yaml:"http"`
	Redis            RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// HTTPConfig configures `crucible serve`.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RedisConfig configures the shared run lock. An empty Addr selects the
// in-process locker.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workspace:        "TruffleProject",
		Tool:             process.DefaultTool,
		ToolsFile:        "tools.yaml",
		GracePeriod:      5 * time.Second,
		MaxArtifactBytes: workspace.DefaultMaxArtifactBytes,
		LogLevel:         "info",
		LogFormat:        string(logging.FormatText),
		HTTP:             HTTPConfig{Addr: ":8080"},
		Redis: RedisConfig{
			Prefix:  redis.DefaultPrefix,
			LockTTL: 30 * time.Second,
		},
	}
}

// envKeys maps each supported variable (without prefix) to its config path.
var envKeys = map[string][]string{
	"WORKSPACE":          {"workspace"},
	"TOOL":               {"tool"},
	"TOOLS_FILE":         {"tools_file"},
	"GRACE_PERIOD":       {"grace_period"},
	"MAX_ARTIFACT_BYTES": {"max_artifact_bytes"},
	"LOG_LEVEL":          {"log_level"},
	"LOG_FORMAT":         {"log_format"},
	"HTTP_ADDR":          {"http", "addr"},
	"REDIS_ADDR":         {"redis", "addr"},
	"REDIS_PASSWORD":     {"redis", "password"},
	"REDIS_DB":           {"redis", "db"},
	"REDIS_PREFIX":       {"redis", "prefix"},
	"REDIS_LOCK_TTL":     {"redis", "lock_ttl"},
}

// Load resolves the configuration. An empty path reads DefaultFile if it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	raw := map[string]any{}
	required := path != ""
	if !required {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	for name, keyPath := range envKeys {
		if v, ok := lookup(EnvPrefix + name); ok {
			setPath(raw, keyPath, v)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Workspace) == "" {
		return fmt.Errorf("invalid config: workspace is required")
	}
	if c.Tool == "" {
		return fmt.Errorf("invalid config: tool is required")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("invalid config: grace_period must be positive, got %s", c.GracePeriod)
	}
	if c.MaxArtifactBytes < 0 {
		return fmt.Errorf("invalid config: max_artifact_bytes must not be negative")
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("invalid config: redis.lock_ttl must be positive")
	}
	switch logging.Format(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid config: log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setPath(m map[string]any, keyPath []string, value string) {
	for _, k := range keyPath[:len(keyPath)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keyPath[len(keyPath)-1]] = value
}
