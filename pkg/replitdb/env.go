package replitdb

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hugoalh/replit-database-client-go/internal/devseed"
	"github.com/hugoalh/replit-database-client-go/internal/httpx"
	"github.com/hugoalh/replit-database-client-go/pkg/replitdb/mock"
)

// Environment variables recognised by NewFromEnv.
const (
	// EnvDatabaseURL supplies the endpoint of the database instance. The
	// hosted service rotates this URL, so environment-resolved clients
	// re-read it periodically.
	EnvDatabaseURL = "REPLIT_DB_URL"
	// EnvMode selects the backend: auto (default), http or mock.
	EnvMode = "REPLIT_DB_MODE"
	// EnvMockSeed points at a YAML or JSON seed file applied to the mock
	// backend.
	EnvMockSeed = "REPLIT_DB_MOCK_SEED"
)

const (
	modeAuto = "auto"
	modeHTTP = "http"
	modeMock = "mock"
)

var _ Backend = (*mock.Mock)(nil)

// NewFromEnv initialises a Client from environment variables and returns
// the resolved mode ("http" or "mock"). In http mode the endpoint is read
// from REPLIT_DB_URL and, unless WithoutRefresh is given, re-read every
// refresh interval: a successful re-read swaps the endpoint atomically, a
// failed one keeps the previous endpoint and is logged, never surfaced.
func NewFromEnv(opts ...Option) (client *Client, mode string, err error) {
	cfg := newConfig(opts)

	mode = strings.ToLower(strings.TrimSpace(os.Getenv(EnvMode)))
	rawURL := strings.TrimSpace(os.Getenv(EnvDatabaseURL))

	switch mode {
	case "", modeAuto:
		if rawURL != "" {
			client, err = newEnvHTTPClient(rawURL, cfg)
			return client, modeHTTP, err
		}
		client, err = newMockClient(cfg)
		return client, modeMock, err
	case modeHTTP:
		if rawURL == "" {
			return nil, "", fmt.Errorf("%w: %s is not set", ErrBadEndpoint, EnvDatabaseURL)
		}
		client, err = newEnvHTTPClient(rawURL, cfg)
		return client, modeHTTP, err
	case modeMock:
		client, err = newMockClient(cfg)
		return client, modeMock, err
	default:
		return nil, "", fmt.Errorf("replitdb: unsupported %s value %q", EnvMode, mode)
	}
}

// RefreshEndpoint re-resolves the endpoint from REPLIT_DB_URL immediately.
// It returns ErrNoEnvEndpoint for clients whose endpoint was supplied
// explicitly, and the resolution error when the variable is missing or
// invalid (the previous endpoint stays in place in that case).
func (c *Client) RefreshEndpoint() error {
	if c == nil || c.refresher == nil {
		return ErrNoEnvEndpoint
	}
	return c.refresher.refreshOnce()
}

func newEnvHTTPClient(rawURL string, cfg *config) (*Client, error) {
	endpoint, err := parseEndpoint(rawURL, cfg.trustedHost)
	if err != nil {
		return nil, err
	}
	transport, err := httpx.NewClient(endpoint, cfg.transportOptions()...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		backend:    &httpBackend{client: transport},
		allSettled: cfg.allSettled,
		refresher: &refresher{
			transport:   transport,
			trustedHost: cfg.trustedHost,
			interval:    cfg.refreshInterval,
			logger:      cfg.loggerOrDefault(),
			stopCh:      make(chan struct{}),
			doneCh:      make(chan struct{}),
		},
	}
	if !cfg.refreshDisabled {
		c.refresher.start()
	}
	return c, nil
}

func newMockClient(cfg *config) (*Client, error) {
	store := mock.New()
	if path := strings.TrimSpace(os.Getenv(EnvMockSeed)); path != "" {
		entries, err := devseed.Load(path)
		if err != nil {
			return nil, fmt.Errorf("replitdb: load mock seed: %w", err)
		}
		if err := store.Seed(entries); err != nil {
			return nil, fmt.Errorf("replitdb: apply mock seed: %w", err)
		}
	}
	return &Client{backend: store, allSettled: cfg.allSettled}, nil
}

// refresher re-resolves the endpoint from the environment on a fixed
// interval. It is owned by the client: Close stops it, and it is never
// started for explicitly-configured endpoints.
type refresher struct {
	transport   *httpx.Client
	trustedHost string
	interval    time.Duration
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
	started     bool
}

func (r *refresher) start() {
	r.started = true
	go r.loop()
}

func (r *refresher) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.refreshOnce(); err != nil {
				r.logger.Debug(
					"endpoint refresh failed, retaining previous endpoint",
					"var", EnvDatabaseURL,
					"error", err,
				)
			}
		}
	}
}

func (r *refresher) refreshOnce() error {
	endpoint, err := parseEndpoint(os.Getenv(EnvDatabaseURL), r.trustedHost)
	if err != nil {
		return err
	}
	return r.transport.Rebase(endpoint)
}

func (r *refresher) stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started {
			<-r.doneCh
		}
	})
}
