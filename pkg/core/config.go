package core

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// ProductionURL is the OKX production REST domain.
	ProductionURL = "https://www.okx.com"
	// SandboxURL is the OKX sandbox REST domain.
	SandboxURL = "https://www.okx.cab"
	// APIPrefix is prepended to every endpoint and is part of the signed path.
	APIPrefix = "/api/v5"
)

// Credentials holds API authentication credentials for OKX.
// Values are opaque and must not change after the executor is built.
type Credentials struct {
	// APIKey is sent as OK-ACCESS-KEY.
	APIKey string `json:"api_key" validate:"required"`
	// SecretKey keys the HMAC signature and is never transmitted.
	SecretKey string `json:"secret_key" validate:"required"`
	// Passphrase is sent as OK-ACCESS-PASSPHRASE.
	Passphrase string `json:"passphrase" validate:"required"`
}

// String masks every field so credentials can be passed to loggers safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s, SecretKey:%s, Passphrase:%s}",
		maskKey(c.APIKey), maskKey(c.SecretKey), maskKey(c.Passphrase))
}

// GoString keeps %#v from printing the raw secrets.
func (c Credentials) GoString() string {
	return c.String()
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for the request pipeline.
type Config struct {
	Exchange    string       `json:"exchange" validate:"required"`
	Sandbox     bool         `json:"sandbox"`
	Credentials *Credentials `json:"credentials,omitempty" validate:"required"`

	// BaseURLOverride replaces the production/sandbox domain when set.
	BaseURLOverride string `json:"base_url_override,omitempty" validate:"omitempty,url"`

	// VerifyTLS is the initial certificate verification setting.
	VerifyTLS bool `json:"verify_tls"`

	// Timeout is the maximum duration of a single HTTP attempt.
	Timeout      time.Duration `json:"timeout" validate:"min=1ms"`
	MaxRetries   int           `json:"max_retries" validate:"min=1"`
	RetryWaitMin time.Duration `json:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" validate:"min=0,gtefield=RetryWaitMin"`

	RateLimitRequests int           `json:"rate_limit_requests" validate:"min=1"`
	RateLimitPeriod   time.Duration `json:"rate_limit_period" validate:"min=1ms"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config with the OKX defaults: production domain,
// TLS verification on, 10s timeout, 3 attempts with a 1s backoff base,
// 20 requests per 2s.
func DefaultConfig() *Config {
	return &Config{
		Exchange:     "okx",
		Sandbox:      false,
		VerifyTLS:    true,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,

		RateLimitRequests: 20,
		RateLimitPeriod:   2 * time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks the struct tags and returns the validator error unchanged.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// BaseURL returns the REST domain for the configured environment.
func (c *Config) BaseURL() string {
	if c.BaseURLOverride != "" {
		return c.BaseURLOverride
	}
	if c.Sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithBaseURL overrides the exchange domain and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURLOverride = url
	return c
}

// WithVerifyTLS sets the initial certificate verification flag.
func (c *Config) WithVerifyTLS(verify bool) *Config {
	c.VerifyTLS = verify
	return c
}

// WithTimeout sets the per-attempt timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetry sets the retry budget and backoff bounds.
func (c *Config) WithRetry(budget int, waitMin, waitMax time.Duration) *Config {
	c.MaxRetries = budget
	c.RetryWaitMin = waitMin
	c.RetryWaitMax = waitMax
	return c
}

// WithRateLimit sets the rate limiting parameters and returns the config for chaining.
func (c *Config) WithRateLimit(requests int, period time.Duration) *Config {
	c.RateLimitRequests = requests
	c.RateLimitPeriod = period
	return c
}
