package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Registry.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Registry.SweepInterval)
	assert.Equal(t, 128, cfg.Registry.OutcomeHistory)
	assert.Equal(t, 32, cfg.Stream.EventBufferSize)
	assert.Equal(t, "mock", cfg.Backend.Provider)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 9100
  cors_origins:
    - https://app.example.com
registry:
  idle_ttl: 5m
backend:
  provider: openai
  model: gpt-4o-mini
team:
  fail_fast: true
  members:
    - name: research
      instructions: Find the facts.
    - name: writer
      instructions: Write it up.
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Registry.IdleTTL)
	assert.Equal(t, "openai", cfg.Backend.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.Model)
	assert.True(t, cfg.Team.FailFast)
	require.Len(t, cfg.Team.Members, 2)
	assert.Equal(t, "research", cfg.Team.Members[0].Name)
	assert.Equal(t, "Find the facts.", cfg.Team.Members[0].Instructions)

	// File values override defaults; untouched sections keep theirs.
	assert.Equal(t, time.Minute, cfg.Registry.SweepInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRODFC_SERVER_PORT", "9200")
	t.Setenv("PRODFC_BACKEND_PROVIDER", "anthropic")
	t.Setenv("PRODFC_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Backend.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BareDeploymentEnv(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sk-test", cfg.Backend.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
