package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG_PATH", "OPENAI_API_KEY", "OPENAI_BASE_URL", "BATCH_DATA_DIR", "BATCH_STORE_DSN"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Burst)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "data", cfg.Store.DataDir)
	assert.Equal(t, filepath.Join("data", "batch.db"), cfg.Store.Path)
	assert.Equal(t, 2*time.Minute, cfg.OpenAI.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join("data", "jobs"), cfg.JobsDir())
	assert.Equal(t, filepath.Join("data", "results"), cfg.ResultsDir())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
  api_keys:
    ci: secret
  rate_limit: 2.5
openai:
  api_key: from-file
  model: o3-mini
  reasoning_effort: HIGH
  max_tokens: 4000
  request_timeout: 30s
store:
  driver: sqlite
  data_dir: /var/lib/batch
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("BATCH_DATA_DIR", "/tmp/batch")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, map[string]string{"ci": "secret"}, cfg.Server.APIKeys)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.RequestTimeout)
	assert.Equal(t, "/tmp/batch", cfg.Store.DataDir)
	assert.Equal(t, filepath.Join("/tmp/batch", "batch.db"), cfg.Store.Path)

	mc := cfg.ModelConfig()
	assert.True(t, mc.Reasoning)
	assert.Equal(t, "high", mc.ReasoningEffort)
	assert.Equal(t, 4000, mc.MaxTokens)
	assert.Zero(t, mc.Temperature)
}

func TestLoadConfigPathEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, "server:\n  port: 7000\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "store:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, "unknown driver")

	_, err = Load(writeConfig(t, "minio:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "minio")

	_, err = Load(writeConfig(t, "server: [1, 2"))
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	var c Config
	c.Store.Host, c.Store.Port, c.Store.User, c.Store.Password, c.Store.Name = "db", 5432, "batch", "pw", "jobs"

	assert.Equal(t, "batch:pw@tcp(db:5432)/jobs?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())
	assert.Equal(t, "host=db port=5432 user=batch password=pw dbname=jobs sslmode=disable", c.PostgresDSN())

	c.Store.DSN = "explicit"
	assert.Equal(t, "explicit", c.MySQLDSN())
	assert.Equal(t, "explicit", c.PostgresDSN())
}
