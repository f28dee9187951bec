package core

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envKeys maps the supported environment variables to config keys.
// SANDBOX_MODE is accepted unprefixed for compatibility with existing .env files.
var envKeys = map[string]string{
	"OKX_API_KEY":       "credentials.api_key",
	"OKX_SECRET_KEY":    "credentials.secret_key",
	"OKX_PASSPHRASE":    "credentials.passphrase",
	"SANDBOX_MODE":      "sandbox",
	"OKX_SANDBOX":       "sandbox",
	"OKX_BASE_URL":      "base_url_override",
	"OKX_VERIFY_TLS":    "verify_tls",
	"OKX_TIMEOUT":       "timeout",
	"OKX_MAX_RETRIES":   "max_retries",
	"OKX_RETRY_WAIT":    "retry_wait_min",
	"OKX_RETRY_MAX":     "retry_wait_max",
	"OKX_LOG_LEVEL":     "log_level",
	"OKX_RATE_REQUESTS": "rate_limit_requests",
	"OKX_RATE_PERIOD":   "rate_limit_period",
}

// LoadOptions controls where LoadConfig reads from.
type LoadOptions struct {
	// File is an optional YAML file. It is skipped when empty.
	File string
	// Environ overrides os.Environ, mainly for tests.
	Environ func() []string
}

// LoadConfig loads configuration with priority:
// 1. Environment variables (highest priority)
// 2. The YAML file, if one is given
// 3. DefaultConfig values (lowest priority)
//
// Credentials are optional at this stage; NewExecutor validates the result.
func LoadConfig(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", opts.File, err)
		}
	}

	env := envprovider.Provider(".", envprovider.Opt{
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeys[key]
			if !ok {
				return "", nil
			}
			return mapped, strings.Trim(strings.TrimSpace(value), `"'`)
		},
		EnvironFunc: opts.Environ,
	})
	if err := k.Load(env, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"exchange":            d.Exchange,
		"sandbox":             d.Sandbox,
		"verify_tls":          d.VerifyTLS,
		"timeout":             d.Timeout.String(),
		"max_retries":         d.MaxRetries,
		"retry_wait_min":      d.RetryWaitMin.String(),
		"retry_wait_max":      d.RetryWaitMax.String(),
		"rate_limit_requests": d.RateLimitRequests,
		"rate_limit_period":   d.RateLimitPeriod.String(),
		"log_level":           d.LogLevel,
	}
}
