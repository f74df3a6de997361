package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
ai:
  default_provider: gemini
  timeout: 10s
pipeline:
  text_ceiling: 5000
  auto_threshold: 0.9
`), 0o600))

	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "ollama", cfg.AI.DefaultProvider)
	assert.Equal(t, 10*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 5000, cfg.Pipeline.TextCeiling)
	assert.Equal(t, 0.9, cfg.Pipeline.AutoThreshold)
	assert.Equal(t, 0.05, cfg.Pipeline.AmbiguityMargin)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.Database.URL)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, 45*time.Second, cfg.AI.Timeout)
}

func TestDatabaseURLFromEnv_BuildsFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "purchases")
	t.Setenv("DB_PORT", "")

	assert.Equal(t, "postgresql://app:secret@db:5432/purchases?sslmode=disable", databaseURLFromEnv())
}
