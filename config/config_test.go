package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/qwencoder/secrets"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "qwen-3-coder", cfg.Model)
	assert.Equal(t, "https://api.qwen.ai/v1", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 300*time.Second, cfg.RefreshMargin)
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{APIKey: "k", Model: "qwen-custom"}.WithDefaults()
	assert.Equal(t, "qwen-custom", cfg.Model)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRefreshMargin, cfg.RefreshMargin)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.APIKey = "sk-test"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing key", func(c *Config) { c.APIKey = "" }, "api_key is required"},
		{"unresolved ref", func(c *Config) { c.APIKey = ""; c.APIKeyRef = "env://X" }, "has not been resolved"},
		{"empty model", func(c *Config) { c.Model = "" }, "model"},
		{"relative base url", func(c *Config) { c.BaseURL = "/v1" }, "base_url"},
		{"ftp base url", func(c *Config) { c.BaseURL = "ftp://api.qwen.ai" }, "base_url"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"negative margin", func(c *Config) { c.RefreshMargin = -time.Second }, "refresh margin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := Config{BaseURL: "https://api.qwen.ai/v1/"}
	assert.Equal(t, "https://api.qwen.ai/v1/auth/token", cfg.Endpoint("/auth/token"))
	assert.Equal(t, "https://api.qwen.ai/v1/code/analyze", cfg.Endpoint("code/analyze"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qwen.yaml")
	content := `
api_key: sk-from-file
model: qwen-3-coder-plus
base_url: https://qwen.internal/v1
timeout_ms: 5000
refresh_margin_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.APIKey)
	assert.Equal(t, "qwen-3-coder-plus", cfg.Model)
	assert.Equal(t, "https://qwen.internal/v1", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.RefreshMargin)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qwen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key_ref: env://QWEN_API_KEY\nrefresh_margin_seconds: 0\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env://QWEN_API_KEY", cfg.APIKeyRef)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRefreshMargin, cfg.RefreshMargin, "zero margin selects the default")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout_ms: [not, a, number]\n"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MYAPP_API_KEY", "sk-env")
	t.Setenv("MYAPP_MODEL", "qwen-env")
	t.Setenv("MYAPP_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("MYAPP_TIMEOUT_MS", "1500")
	t.Setenv("MYAPP_REFRESH_MARGIN_SECONDS", "30")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv("MYAPP"))
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, "qwen-env", cfg.Model)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.RefreshMargin)
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	t.Setenv("MYAPP_TIMEOUT_MS", "soon")

	cfg := Default()
	err := cfg.ApplyEnv("MYAPP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYAPP_TIMEOUT_MS")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("QWEN_CONFIG_TEST_KEY", "sk-resolved")

	cfg := Default()
	cfg.APIKeyRef = "env://QWEN_CONFIG_TEST_KEY"
	require.NoError(t, cfg.ResolveAPIKey(context.Background()))
	assert.Equal(t, "sk-resolved", cfg.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestResolveAPIKey_ExplicitKeyWins(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-explicit"
	cfg.APIKeyRef = "unknown://never-called"
	require.NoError(t, cfg.ResolveAPIKey(context.Background()))
	assert.Equal(t, "sk-explicit", cfg.APIKey)
}

func TestResolveAPIKey_Error(t *testing.T) {
	cfg := Default()
	cfg.APIKeyRef = "unknown://vault/item"
	err := cfg.ResolveAPIKey(context.Background())

	var unsupported *secrets.UnsupportedSchemeError
	assert.ErrorAs(t, err, &unsupported)
	assert.Empty(t, cfg.APIKey)
}
