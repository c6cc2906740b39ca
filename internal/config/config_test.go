package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  listen_addr: ":9000"
  allowed_origins: ["http://localhost:3000"]
openai:
  api_key: from-file
  voice: verse
elasticsearch:
  addresses: ["http://es:9200"]
sessions:
  max_sessions: 5
  session_timeout: 10m
log:
  level: debug
  format: json
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("MAX_SESSIONS", "7")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "verse", cfg.OpenAI.Voice)
	assert.Equal(t, 7, cfg.Sessions.MaxSessions)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.SessionTimeout)
	assert.Equal(t, "walmart_products", cfg.Elasticsearch.Index)
	assert.True(t, cfg.SearchEnabled())

	lvl, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_DotEnv(t *testing.T) {
	// godotenv never overrides variables that are already set
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("REDIS_URL", "")
	os.Unsetenv("REDIS_URL")

	env := writeFile(t, "test.env", "OPENAI_API_KEY=dotenv-key\nREDIS_URL=redis://cache:6379/1\n")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.OpenAI.APIKey)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	bad := writeFile(t, "bad.yaml", "server: [")
	_, err = Load(bad)
	require.ErrorContains(t, err, "parse config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"OPENAI_KEY":        "short",
		"ELASTICSEARCH_URL": "http://a:9200, http://b:9200,",
		"SESSION_TIMEOUT":   "90s",
		"DATABASE_MIGRATE":  "false",
		"INPUT_SAMPLE_RATE": "16000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "short", cfg.OpenAI.APIKey)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, 90*time.Second, cfg.Sessions.SessionTimeout)
	assert.False(t, cfg.Database.Migrate)
	assert.Equal(t, 16000, cfg.OpenAI.InputSampleRate)

	for _, key := range []string{"MAX_SESSIONS", "SESSION_TIMEOUT", "INPUT_SAMPLE_RATE", "DATABASE_MIGRATE"} {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(envMap(map[string]string{key: "not-a-value"}))
			require.ErrorContains(t, err, key)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.ErrorContains(t, err, "OPENAI_API_KEY is required")

	cfg.OpenAI.APIKey = "k"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.SearchEnabled())

	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Sessions.MaxSessions = 0
	err = cfg.Validate()
	require.ErrorContains(t, err, "invalid log level")
	require.ErrorContains(t, err, "invalid log format")
	require.ErrorContains(t, err, "invalid max sessions")
}
