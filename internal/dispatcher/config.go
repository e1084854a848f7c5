package dispatcher

import (
	"fmt"
	"net/url"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// Delivery defaults. Run notifications are low volume, one per run.
const (
	defaultBufferSize       = 256
	defaultWorkers          = 2
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	deliveryTimeout         = 30 * time.Second
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	URL         string        // webhook receiving run events
	SigningKey  string        // HMAC key, empty = unsigned
	BufferSize  int           // pending events buffer (default: 256)
	Workers     int           // concurrent delivery goroutines (default: 2)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
	MaxRetries  int           // retries after the first attempt (default: 3)
}

// LoadConfigFromEnv combines the callback settings with the tuning variables.
func LoadConfigFromEnv(cb config.CallbackConfig) MemoryConfig {
	cfg := MemoryConfig{
		URL:         cb.URL,
		SigningKey:  cb.Key,
		BufferSize:  config.GetIntEnv("INGESTA_DISPATCHER_BUFFER_SIZE", defaultBufferSize),
		Workers:     config.GetIntEnv("INGESTA_DISPATCHER_WORKERS", defaultWorkers),
		HTTPTimeout: config.GetDurationEnv("INGESTA_DISPATCHER_HTTP_TIMEOUT", defaultHTTPTimeout),
		MaxRetries:  config.GetIntEnv("INGESTA_DISPATCHER_MAX_RETRIES", defaultMaxRetries),
	}
	return cfg.withDefaults()
}

// Validate checks that the webhook URL is an absolute http(s) URL.
func (c MemoryConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid callback URL %q: must be an absolute http(s) URL", c.URL)
	}
	return nil
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}
