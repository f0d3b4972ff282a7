package transport

import (
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout applies to backend-owned clients.
const DefaultTimeout = 30 * time.Second

// Config is shared by every backend constructor.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option configures a backend.
type Option func(*Config)

// WithBaseURL points a backend at another instance of the same service.
func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		if baseURL != "" {
			c.BaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient makes the backend use a caller-owned client for every
// call. The backend never closes it.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = httpClient
	}
}

// WithTimeout sets the timeout of backend-owned clients.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

func NewConfig(defaultBaseURL string, opts ...Option) Config {
	c := Config{
		BaseURL: strings.TrimSuffix(defaultBaseURL, "/"),
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Open starts a session for one backend call.
func (c Config) Open() *Session {
	return Open(c.HTTPClient, c.Timeout)
}
