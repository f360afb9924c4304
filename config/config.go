// Package config loads service configuration from environment variables and
// an optional YAML file via viper. Environment variables use the PRODFC_
// prefix with underscores (PRODFC_SERVER_PORT); the bare HOST and PORT
// variables are honored for deployment compatibility.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// RegistryConfig configures the session registry and reaper.
type RegistryConfig struct {
	// IdleTTL is the idle duration after which the reaper evicts a
	// session. Zero disables periodic eviction; sessions then live for
	// the process lifetime unless cleaned up on demand.
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	OutcomeHistory int           `mapstructure:"outcome_history"`
}

// StreamConfig configures the event pipeline.
type StreamConfig struct {
	// EventBufferSize caps each run's emit channel; production blocks
	// beyond it when the subscriber stalls.
	EventBufferSize int `mapstructure:"event_buffer_size"`
}

// MemberConfig declares one routable team sub-agent.
type MemberConfig struct {
	Name         string `mapstructure:"name"`
	Instructions string `mapstructure:"instructions"`
}

// BackendConfig selects and configures the model provider.
type BackendConfig struct {
	// Provider is one of openai, anthropic, mock.
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	// BaseURL points the openai provider at a compatible gateway such as
	// OpenRouter.
	BaseURL      string `mapstructure:"base_url"`
	Instructions string `mapstructure:"instructions"`
}

// TeamConfig configures team runs.
type TeamConfig struct {
	FailFast bool           `mapstructure:"fail_fast"`
	Members  []MemberConfig `mapstructure:"members"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Team     TeamConfig     `mapstructure:"team"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads configuration with defaults, the optional file at path, and
// environment overrides, in ascending precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("registry.idle_ttl", 30*time.Minute)
	v.SetDefault("registry.sweep_interval", time.Minute)
	v.SetDefault("registry.outcome_history", 128)
	v.SetDefault("stream.event_buffer_size", 32)
	v.SetDefault("backend.provider", "mock")
	v.SetDefault("backend.model", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix("PRODFC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare HOST / PORT are what the original deployment used.
	_ = v.BindEnv("server.host", "PRODFC_SERVER_HOST", "HOST")
	_ = v.BindEnv("server.port", "PRODFC_SERVER_PORT", "PORT")
	_ = v.BindEnv("backend.api_key", "PRODFC_BACKEND_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
