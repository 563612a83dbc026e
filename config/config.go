// Package config holds the adapter configuration: defaults, YAML loading,
// environment overrides under a caller-chosen prefix, and API key resolution.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/qwencoder/secrets"
)

const (
	DefaultModel         = "qwen-3-coder"
	DefaultBaseURL       = "https://api.qwen.ai/v1"
	DefaultTimeout       = 30 * time.Second
	DefaultRefreshMargin = 5 * time.Minute
)

// Config configures a coder.Client.
type Config struct {
	// APIKey is exchanged for bearer tokens. Required unless APIKeyRef is set.
	APIKey string `yaml:"api_key"`
	// APIKeyRef is a secret URI (env://, keyring://, awssm://) resolved by
	// ResolveAPIKey when APIKey is empty.
	APIKeyRef string `yaml:"api_key_ref"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every outbound request, token exchanges included.
	// Zero selects DefaultTimeout.
	Timeout time.Duration `yaml:"-"`
	// RefreshMargin is subtracted from each token's declared lifetime.
	// Zero selects DefaultRefreshMargin.
	RefreshMargin time.Duration `yaml:"-"`
}

// fileConfig is the on-disk shape; durations are integers in the units the
// key names. Zero means default, as everywhere else in Config.
type fileConfig struct {
	APIKey               string `yaml:"api_key"`
	APIKeyRef            string `yaml:"api_key_ref"`
	Model                string `yaml:"model"`
	BaseURL              string `yaml:"base_url"`
	TimeoutMS            int64  `yaml:"timeout_ms"`
	RefreshMarginSeconds int64  `yaml:"refresh_margin_seconds"`
}

// Default returns a configuration with every optional field at its default.
func Default() Config {
	return Config{
		Model:         DefaultModel,
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		RefreshMargin: DefaultRefreshMargin,
	}
}

// WithDefaults fills zero-valued optional fields.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = d.RefreshMargin
	}
	return c
}

// Validate checks that c can build a client.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		if c.APIKeyRef != "" {
			errs = append(errs, fmt.Errorf("api_key_ref %q has not been resolved", c.APIKeyRef))
		} else {
			errs = append(errs, errors.New("api_key is required"))
		}
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout %v must be positive", c.Timeout))
	}
	if c.RefreshMargin < 0 {
		errs = append(errs, fmt.Errorf("refresh margin %v must not be negative", c.RefreshMargin))
	}
	return errors.Join(errs...)
}

// Endpoint joins the base URL and an API path.
func (c Config) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if fc.APIKey != "" {
		cfg.APIKey = fc.APIKey
	}
	if fc.APIKeyRef != "" {
		cfg.APIKeyRef = fc.APIKeyRef
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.TimeoutMS != 0 {
		cfg.Timeout = time.Duration(fc.TimeoutMS) * time.Millisecond
	}
	if fc.RefreshMarginSeconds != 0 {
		cfg.RefreshMargin = time.Duration(fc.RefreshMarginSeconds) * time.Second
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables named
// PREFIX_API_KEY, PREFIX_API_KEY_REF, PREFIX_MODEL, PREFIX_BASE_URL,
// PREFIX_TIMEOUT_MS and PREFIX_REFRESH_MARGIN_SECONDS.
func (c *Config) ApplyEnv(prefix string) error {
	env := func(name string) string {
		return os.Getenv(prefix + "_" + name)
	}

	if v := env("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := env("API_KEY_REF"); v != "" {
		c.APIKeyRef = v
	}
	if v := env("MODEL"); v != "" {
		c.Model = v
	}
	if v := env("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := env("TIMEOUT_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s_TIMEOUT_MS: %w", prefix, err)
		}
		c.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := env("REFRESH_MARGIN_SECONDS"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s_REFRESH_MARGIN_SECONDS: %w", prefix, err)
		}
		c.RefreshMargin = time.Duration(secs) * time.Second
	}
	return nil
}

// ResolveAPIKey fills APIKey from APIKeyRef when APIKey is empty.
func (c *Config) ResolveAPIKey(ctx context.Context) error {
	if c.APIKey != "" || c.APIKeyRef == "" {
		return nil
	}
	key, err := secrets.Resolve(ctx, c.APIKeyRef)
	if err != nil {
		return fmt.Errorf("resolving api key: %w", err)
	}
	c.APIKey = key
	return nil
}
