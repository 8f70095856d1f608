package cloud

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Brightness scales understood by the cloud API.
const (
	ScaleRaw     = "raw"
	ScalePercent = "percent"
)

const (
	DefaultMethod    = http.MethodPatch
	DefaultTimeout   = 5 * time.Second
	DefaultQueueSize = 32
)

// Config holds cloud mirror settings.
type Config struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	BearerToken     string        `yaml:"bearer_token"`
	Method          string        `yaml:"method"`
	Timeout         time.Duration `yaml:"timeout"`
	Async           bool          `yaml:"async"`
	QueueSize       int           `yaml:"queue_size"`
	BrightnessScale string        `yaml:"brightness_scale"`
}

// Enabled reports whether a cloud endpoint is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Method == "" {
		c.Method = DefaultMethod
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BrightnessScale == "" {
		c.BrightnessScale = ScaleRaw
	}
	return c
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.BrightnessScale {
	case "", ScaleRaw, ScalePercent:
	default:
		return fmt.Errorf("cloud.brightness_scale must be %q or %q, got %q", ScaleRaw, ScalePercent, c.BrightnessScale)
	}
	if c.URL != "" && !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("cloud.url must be an http(s) URL, got %q", c.URL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("cloud.timeout must not be negative")
	}
	return nil
}

// ConfigFromEnv applies environment overrides on top of base.
func ConfigFromEnv(base Config) Config {
	applyEnvOverrides(&base)
	return base
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLOUD_URL"); v != "" {
		cfg.URL = v
	} else if v := os.Getenv("CLOUD_BASE_URL"); v != "" && cfg.URL == "" {
		cfg.URL = v
	}
	if v := os.Getenv("CLOUD_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CLOUD_BEARER_TOKEN"); v != "" {
		cfg.BearerToken = v
	}
	if v := os.Getenv("CLOUD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
}
