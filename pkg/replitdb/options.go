package replitdb

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hugoalh/replit-database-client-go/internal/httpx"
)

// DefaultRefreshInterval is how often environment-resolved clients re-read
// the endpoint variable.
const DefaultRefreshInterval = 30 * time.Minute

// Option configures a Client.
type Option func(*config)

type config struct {
	allSettled      bool
	trustedHost     string
	timeout         time.Duration
	maxRetries      int
	userAgent       string
	httpClient      *http.Client
	logger          *slog.Logger
	refreshInterval time.Duration
	refreshDisabled bool
}

func newConfig(opts []Option) *config {
	cfg := &config{
		maxRetries:      -1,
		refreshInterval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithAllSettled switches batch operations (Delete, SetEntries, Clear) from
// fail-fast to settle-all: every item is attempted and failures are
// aggregated into a single BatchError.
func WithAllSettled() Option {
	return func(c *config) {
		c.allSettled = true
	}
}

// WithTrustedHost restricts explicit endpoints to the given hostname.
// Typically used with DefaultTrustedHost.
func WithTrustedHost(host string) Option {
	return func(c *config) {
		c.trustedHost = host
	}
}

// WithTimeout sets the per-request timeout of the HTTP transport.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries bounds how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// WithHTTPClient supplies a custom *http.Client to the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		c.httpClient = h
	}
}

// WithLogger sets the logger used for background events such as failed
// endpoint refreshes. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRefreshInterval tunes how often environment-resolved clients re-read
// the endpoint variable.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.refreshInterval = d
		}
	}
}

// WithoutRefresh disables the background endpoint refresher for
// environment-resolved clients.
func WithoutRefresh() Option {
	return func(c *config) {
		c.refreshDisabled = true
	}
}

func (c *config) transportOptions() []httpx.Option {
	var opts []httpx.Option
	if c.httpClient != nil {
		opts = append(opts, httpx.WithHTTPClient(c.httpClient))
	}
	if c.timeout > 0 {
		opts = append(opts, httpx.WithTimeout(c.timeout))
	}
	if c.userAgent != "" {
		opts = append(opts, httpx.WithUserAgent(c.userAgent))
	}
	if c.maxRetries >= 0 {
		policy := httpx.DefaultRetryPolicy
		policy.MaxRetries = c.maxRetries
		opts = append(opts, httpx.WithRetryPolicy(policy))
	}
	return opts
}

func (c *config) loggerOrDefault() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
