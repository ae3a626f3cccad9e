// Package config loads uploader settings from defaults, a YAML or JSON file
// and SCOPED_UPLOAD_* environment variables.
package config

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
	"github.com/tendant/scoped-upload/pkg/scopedupload/messages"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config holds everything needed to build an Uploader.
type Config struct {
	Endpoint           string `yaml:"endpoint" json:"endpoint" env:"SCOPED_UPLOAD_ENDPOINT" env-description:"Gateway base URL"`
	BasePath           string `yaml:"base_path" json:"base_path" env:"SCOPED_UPLOAD_BASE_PATH" env-description:"Path prefix for every item"`
	SigningSecret      string `yaml:"signing_secret" json:"signing_secret" env:"SCOPED_UPLOAD_SIGNING_SECRET" env-description:"Token signing key (HMAC secret or PEM private key)"`
	SigningAlgorithm   string `yaml:"signing_algorithm" json:"signing_algorithm" env:"SCOPED_UPLOAD_SIGNING_ALGORITHM" env-description:"Token algorithm, e.g. HS256"`
	TokenIssuer        string `yaml:"token_issuer" json:"token_issuer" env:"SCOPED_UPLOAD_TOKEN_ISSUER" env-description:"Issuer claim"`
	DefaultQueryParams string `yaml:"default_query_params" json:"default_query_params" env:"SCOPED_UPLOAD_DEFAULT_QUERY_PARAMS" env-description:"Query appended to retrieval URLs and pinned in their tokens"`

	Language string `yaml:"language" json:"language" env:"SCOPED_UPLOAD_LANGUAGE" env-description:"Language for user-facing errors"`

	// Transport
	Timeout       time.Duration `yaml:"timeout" json:"timeout" env:"SCOPED_UPLOAD_TIMEOUT" env-description:"HTTP timeout per request"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts" env:"SCOPED_UPLOAD_RETRY_ATTEMPTS" env-description:"Attempts per upload for network errors and 5xx"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay" env:"SCOPED_UPLOAD_RETRY_DELAY" env-description:"Delay between attempts"`
}

// Load constructs a Config by applying the supplied options on top of defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		SigningAlgorithm: string(scopedupload.AlgorithmHS256),
		TokenIssuer:      scopedupload.ClientIdentifier,
		Language:         "en",
		Timeout:          30 * time.Second,
		RetryAttempts:    1,
		RetryDelay:       500 * time.Millisecond,
	}
}

// WithEnv overrides fields from SCOPED_UPLOAD_* environment variables. Unset
// variables leave the current value alone.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML or JSON file, chosen by extension. Environment
// variables still take precedence over file values.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithGateway sets the gateway fields programmatically.
func WithGateway(gw scopedupload.GatewayConfig) Option {
	return func(c *Config) error {
		c.Endpoint = gw.Endpoint
		c.BasePath = gw.BasePath
		c.SigningSecret = gw.SigningSecret
		if gw.SigningAlgorithm != "" {
			c.SigningAlgorithm = string(gw.SigningAlgorithm)
		}
		if gw.TokenIssuer != "" {
			c.TokenIssuer = gw.TokenIssuer
		}
		c.DefaultQueryParams = gw.DefaultQueryParams
		return nil
	}
}

// WithLanguage selects the message catalog language.
func WithLanguage(lang string) Option {
	return func(c *Config) error {
		c.Language = lang
		return nil
	}
}

// Gateway returns the gateway portion of the config.
func (c *Config) Gateway() scopedupload.GatewayConfig {
	return scopedupload.GatewayConfig{
		Endpoint:           c.Endpoint,
		BasePath:           c.BasePath,
		SigningSecret:      c.SigningSecret,
		SigningAlgorithm:   scopedupload.Algorithm(c.SigningAlgorithm),
		TokenIssuer:        c.TokenIssuer,
		DefaultQueryParams: c.DefaultQueryParams,
	}
}

// Validate validates the configuration. Gateway problems match
// scopedupload.ErrConfigMissing.
func (c *Config) Validate() error {
	gw := c.Gateway()
	if err := gw.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Transport builds the HTTP transport described by the config.
func (c *Config) Transport(opts ...scopedupload.TransportOption) *scopedupload.HTTPTransport {
	base := []scopedupload.TransportOption{
		scopedupload.WithHTTPClient(&http.Client{Timeout: c.Timeout}),
		scopedupload.WithRetry(c.RetryAttempts, c.RetryDelay),
	}
	return scopedupload.NewHTTPTransport(append(base, opts...)...)
}

// BuildUploader creates an Uploader from the config. Extra options are
// applied after the config-derived ones.
func (c *Config) BuildUploader(opts ...scopedupload.Option) (*scopedupload.Uploader, error) {
	gw := c.Gateway()
	base := []scopedupload.Option{
		scopedupload.WithTransport(c.Transport()),
		scopedupload.WithMessages(messages.New(c.Language)),
	}
	return scopedupload.New(&gw, append(base, opts...)...)
}
