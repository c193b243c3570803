package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Pool.Size)
	assert.Equal(t, 600*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "session_cookie:", cfg.Cache.KeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.Site.LoginTimeout)
	assert.Equal(t, 12*time.Second, cfg.Site.RenderTimeout)
	assert.Equal(t, 3*time.Second, cfg.Site.SettleDelay)
	assert.Equal(t, ConsentAuto, cfg.Conversation.ConsentMode)
}

func TestResultURL(t *testing.T) {
	site := DefaultConfig().Site
	assert.Equal(t, "https://jcboseustymca.co.in/Forms/Student/StudentResult.aspx?menuID=119", site.ResultURL())

	site.BaseURL = "http://127.0.0.1:8080"
	site.ResultPath = "result"
	assert.Equal(t, "http://127.0.0.1:8080/result", site.ResultURL())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resultbot.yaml")
	content := `
pool:
  size: 5
  shutdown_grace: 10s
cache:
  ttl: 15m
conversation:
  consent_mode: ask
  allowed_users: ["1234*"]
site:
  login_timeout: 7s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Pool.Size)
	assert.Equal(t, 10*time.Second, cfg.Pool.ShutdownGrace)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, ConsentAsk, cfg.Conversation.ConsentMode)
	assert.Equal(t, []string{"1234*"}, cfg.Conversation.AllowedUsers)
	assert.Equal(t, 7*time.Second, cfg.Site.LoginTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched values keep their defaults
	assert.Equal(t, "ASP.NET_SessionId", cfg.Site.CookieName)
	assert.Equal(t, 1366, cfg.Pool.ViewportWidth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool: [unterminated"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BOT_TOKEN":    "123:abc",
		"REDIS_URL":    "redis://localhost:6379/0",
		"GROQ_API_KEY": "gsk_test",
		"LLM_MODEL":    "llama-3.1-8b-instant",
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, "gsk_test", cfg.LLM.APIKey)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
}

func TestApplyEnvKeyPrecedence(t *testing.T) {
	env := map[string]string{
		"LLM_API_KEY":    "primary",
		"OPENAI_API_KEY": "secondary",
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "primary", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr string
	}{
		{
			name:      "zero pool size",
			mutate:    func(c *Config) { c.Pool.Size = 0 },
			expectErr: "pool.size must be positive",
		},
		{
			name:      "zero ttl",
			mutate:    func(c *Config) { c.Cache.TTL = 0 },
			expectErr: "cache.ttl must be positive",
		},
		{
			name:      "unknown consent mode",
			mutate:    func(c *Config) { c.Conversation.ConsentMode = "sometimes" },
			expectErr: "invalid conversation.consent_mode",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "loud" },
			expectErr: "invalid logging level",
		},
		{
			name:      "missing semester selector",
			mutate:    func(c *Config) { c.Site.Selectors.Semester = "" },
			expectErr: "selectors.semester is required",
		},
		{
			name:      "zero login timeout",
			mutate:    func(c *Config) { c.Site.LoginTimeout = 0 },
			expectErr: "login_timeout must be positive",
		},
		{
			name:      "relative base url",
			mutate:    func(c *Config) { c.Site.BaseURL = "portal" },
			expectErr: "invalid base_url",
		},
		{
			name:      "llm without model",
			mutate:    func(c *Config) { c.LLM.Model = "" },
			expectErr: "llm.model is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

func TestValidateDefaultsLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
}
