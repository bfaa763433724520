package replitdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/hugoalh/replit-database-client-go/internal/httpx"
	"github.com/hugoalh/replit-database-client-go/internal/kvwire"
)

// Backend is the raw operation surface the client drives. The HTTP backend
// speaks the store's wire protocol; pkg/replitdb/mock provides an in-memory
// implementation.
type Backend interface {
	// Get returns the stored JSON text for key, or nil when the key is
	// absent (empty response body).
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores raw as the JSON text for key.
	Set(ctx context.Context, key string, raw []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ListKeys returns the keys starting with prefix, in store order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Client provides access to a Replit Database instance.
type Client struct {
	backend    Backend
	allSettled bool
	refresher  *refresher
}

// New constructs a Client bound to the provided endpoint URL.
func New(rawURL string, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)
	endpoint, err := parseEndpoint(rawURL, cfg.trustedHost)
	if err != nil {
		return nil, err
	}
	transport, err := httpx.NewClient(endpoint, cfg.transportOptions()...)
	if err != nil {
		return nil, err
	}
	return &Client{
		backend:    &httpBackend{client: transport},
		allSettled: cfg.allSettled,
	}, nil
}

// NewWithBackend allows callers to supply a custom backend (e.g., mocks).
func NewWithBackend(b Backend, opts ...Option) *Client {
	cfg := newConfig(opts)
	return &Client{backend: b, allSettled: cfg.allSettled}
}

// Close stops the background endpoint refresher, if any. The client remains
// usable afterwards; the endpoint simply stops tracking the environment.
func (c *Client) Close() error {
	if c.refresher != nil {
		c.refresher.stop()
	}
	return nil
}

// Endpoint returns the currently resolved endpoint URL, or an empty string
// for non-HTTP backends.
func (c *Client) Endpoint() string {
	if hb, ok := c.backend.(*httpBackend); ok {
		return hb.client.BaseURL().String()
	}
	return ""
}

// Get retrieves a value and decodes it into the requested type. A nil item
// means the key is absent. A stored JSON null also decodes to a nil item:
// the wire protocol cannot distinguish the two for typed reads (use
// Client.GetRaw to observe the difference).
func Get[T any](ctx context.Context, c *Client, key string) (*Item[T], error) {
	raw, err := c.GetRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeItem[T](key, raw)
}

// Set stores a value encoded as JSON.
func Set[T any](ctx context.Context, c *Client, key string, value T) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	return c.SetRaw(ctx, key, raw)
}

// SetEntries stores every entry in order, applying the client's batch
// failure policy: fail-fast by default, settle-all under WithAllSettled.
func SetEntries[T any](ctx context.Context, c *Client, entries []Item[T]) error {
	return c.runBatch(len(entries), func(i int) error {
		return Set(ctx, c, entries[i].Key, entries[i].Value)
	})
}

// List fetches the value of every key selected by filter, in key order.
// Keys deleted between listing and fetch are omitted. Enumeration is not
// transactional: values reflect the store's state at each individual read.
func List[T any](ctx context.Context, c *Client, filter Filter) ([]Item[T], error) {
	keys, err := c.Keys(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]Item[T], 0, len(keys))
	for _, key := range keys {
		item, err := Get[T](ctx, c, key)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

// Values projects List to the value-only sequence, in the same order.
func Values[T any](ctx context.Context, c *Client, filter Filter) ([]T, error) {
	items, err := List[T](ctx, c, filter)
	if err != nil {
		return nil, err
	}
	values := make([]T, len(items))
	for i, item := range items {
		values[i] = item.Value
	}
	return values, nil
}

// GetRaw fetches the verbatim JSON text stored for a key. A nil result
// means the key is absent; a stored JSON null is returned as the literal
// text "null".
func (c *Client) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	if err := c.check(key); err != nil {
		return nil, err
	}
	return c.backend.Get(ctx, key)
}

// SetRaw stores a pre-encoded JSON payload.
func (c *Client) SetRaw(ctx context.Context, key string, raw json.RawMessage) error {
	if err := c.check(key); err != nil {
		return err
	}
	return c.backend.Set(ctx, key, raw)
}

// Has reports whether the key holds a value.
func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	raw, err := c.GetRaw(ctx, key)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Keys returns the keys selected by filter, sorted lexicographically. A nil
// filter selects every key.
func (c *Client) Keys(ctx context.Context, filter Filter) ([]string, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("replitdb: client is nil")
	}

	prefix := ""
	if filter != nil {
		prefix = filter.serverPrefix()
	}
	keys, err := c.backend.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if filter != nil {
		kept := keys[:0]
		for _, key := range keys {
			ok, err := filter.keep(key)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, key)
			}
		}
		keys = kept
	}

	sort.Strings(keys)
	return keys, nil
}

// Delete removes the given keys sequentially under the client's batch
// failure policy. Deleting an absent key succeeds.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.runBatch(len(keys), func(i int) error {
		if err := c.check(keys[i]); err != nil {
			return err
		}
		return c.backend.Delete(ctx, keys[i])
	})
}

// Clear deletes every key in the store under the batch failure policy.
func (c *Client) Clear(ctx context.Context) error {
	keys, err := c.Keys(ctx, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Delete(ctx, keys...)
}

// Size returns the number of keys in the store.
func (c *Client) Size(ctx context.Context) (int, error) {
	keys, err := c.Keys(ctx, nil)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// runBatch executes op for indexes 0..n-1, strictly one at a time. Under
// fail-fast the first error aborts the batch and propagates as-is; under
// settle-all every index is attempted and failures are aggregated.
func (c *Client) runBatch(n int, op func(i int) error) error {
	if c == nil || c.backend == nil {
		return errors.New("replitdb: client is nil")
	}

	if !c.allSettled {
		for i := 0; i < n; i++ {
			if err := op(i); err != nil {
				return err
			}
		}
		return nil
	}

	var errs []error
	for i := 0; i < n; i++ {
		if err := op(i); err != nil {
			errs = append(errs, err)
		}
	}
	return newBatchError(errs)
}

func (c *Client) check(key string) error {
	if c == nil || c.backend == nil {
		return errors.New("replitdb: client is nil")
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func decodeItem[T any](key string, raw json.RawMessage) (*Item[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var value T
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, fmt.Errorf("replitdb: decode value for key %q: %w", key, err)
	}
	return &Item[T]{Key: key, Value: value}, nil
}

func encodeValue[T any](value T) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("replitdb: encode value: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// httpBackend speaks the store's wire protocol over internal/httpx.
type httpBackend struct {
	client *httpx.Client
}

func (b *httpBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   kvwire.EscapeKey(key),
	})
	if err != nil {
		return nil, remoteError(err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func (b *httpBackend) Set(ctx context.Context, key string, raw []byte) error {
	body, contentType := httpx.WithFormBody(kvwire.EncodeSetForm(key, raw))
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   body,
	})
	if err != nil {
		return remoteError(err)
	}
	_ = resp.Body.Close()
	return nil
}

func (b *httpBackend) Delete(ctx context.Context, key string) error {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodDelete,
		Path:   kvwire.EscapeKey(key),
	})
	if err != nil {
		// Deleting an absent key reports 404; treat it as success.
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return remoteError(err)
	}
	_ = resp.Body.Close()
	return nil
}

func (b *httpBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	query := url.Values{"encode": {"true"}, "prefix": {prefix}}
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Query:  query,
	})
	if err != nil {
		return nil, remoteError(err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, err
	}
	return kvwire.ParseKeyList(data)
}

// remoteError converts transport-level HTTP errors into the public
// RemoteError type; other errors pass through unchanged.
func remoteError(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return &RemoteError{
			StatusCode: httpErr.StatusCode,
			Status:     httpErr.Status,
			Body:       httpErr.Body,
		}
	}
	return err
}
