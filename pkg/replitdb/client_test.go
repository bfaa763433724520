package replitdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hugoalh/replit-database-client-go/pkg/replitdb"
)

type counter struct {
	Count int `json:"count"`
}

// fakeStore implements the store's wire protocol for tests: newline-delimited
// percent-encoded key listings, empty-body reads for absent keys, form-encoded
// writes, and 204/404 deletes. failures maps a key to a status code that its
// DELETE should fail with.
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]string
	failures map[string]int
	deletes  []string
	sets     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:    make(map[string]string),
		failures: make(map[string]int),
	}
}

func (s *fakeStore) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			s.handleList(w, r)
		case r.Method == http.MethodGet:
			s.handleGet(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/":
			s.handleSet(w, r)
		case r.Method == http.MethodDelete:
			s.handleDelete(w, r)
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	})
}

func (s *fakeStore) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	encode := r.URL.Query().Get("encode") == "true"

	s.mu.Lock()
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, key := range keys {
		if encode {
			lines[i] = url.PathEscape(key)
		} else {
			lines[i] = key
		}
	}
	_, _ = w.Write([]byte(strings.Join(lines, "\n")))
}

func (s *fakeStore) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	value, ok := s.items[key]
	s.mu.Unlock()
	if !ok {
		// Absent keys read as an empty body.
		return
	}
	_, _ = w.Write([]byte(value))
}

func (s *fakeStore) handleSet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	for key, values := range r.PostForm {
		s.items[key] = values[0]
		s.sets = append(s.sets, key)
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *fakeStore) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	code, failed := s.failures[key]
	_, existed := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()

	if failed {
		http.Error(w, "injected failure", code)
		return
	}
	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *fakeStore) deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func newTestClient(t *testing.T, store *fakeStore, opts ...replitdb.Option) *replitdb.Client {
	t.Helper()
	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)

	opts = append([]replitdb.Option{replitdb.WithMaxRetries(0)}, opts...)
	client, err := replitdb.New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	want := counter{Count: 42}
	if err := replitdb.Set(ctx, client, "jobs:123", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := replitdb.Get[counter](ctx, client, "jobs:123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatal("expected item, got nil")
	}
	if diff := cmp.Diff(want, item.Value); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	ok, err := client.Has(ctx, "jobs:123")
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v; want true, nil", ok, err)
	}
}

func TestGetAbsentKey(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	item, err := replitdb.Get[counter](ctx, client, "never-set")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %#v", item)
	}

	ok, err := client.Has(ctx, "never-set")
	if err != nil || ok {
		t.Fatalf("Has = %v, %v; want false, nil", ok, err)
	}
}

func TestEmptyStringValueIsPresent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	if err := replitdb.Set(ctx, client, "blank", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, err := client.GetRaw(ctx, "blank")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(raw) != `""` {
		t.Fatalf("GetRaw = %q, want %q", raw, `""`)
	}

	item, err := replitdb.Get[string](ctx, client, "blank")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || item.Value != "" {
		t.Fatalf("expected present empty string, got %#v", item)
	}
}

func TestStoredNullReadsAsAbsentForTypedGet(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	if err := client.SetRaw(ctx, "nothing", []byte("null")); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}

	raw, err := client.GetRaw(ctx, "nothing")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("GetRaw = %q, want null", raw)
	}

	item, err := replitdb.Get[counter](ctx, client, "nothing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("typed Get of stored null should report absent, got %#v", item)
	}
}

func TestRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	client, err := replitdb.New(srv.URL, replitdb.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.GetRaw(context.Background(), "any")
	var remoteErr *replitdb.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want 403", remoteErr.StatusCode)
	}
	if !strings.Contains(string(remoteErr.Body), "boom") {
		t.Fatalf("Body = %q, want to contain boom", remoteErr.Body)
	}
}

func TestKeysPrefixFilter(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	for key, value := range map[string]int{"a": 1, "ab": 2, "b": 3} {
		if err := replitdb.Set(ctx, client, key, value); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	all, err := client.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "ab", "b"}, all); diff != "" {
		t.Fatalf("Keys(nil) mismatch (-want +got):\n%s", diff)
	}

	prefixed, err := client.Keys(ctx, replitdb.Prefix("a"))
	if err != nil {
		t.Fatalf("Keys(Prefix): %v", err)
	}
	if diff := cmp.Diff([]string{"a", "ab"}, prefixed); diff != "" {
		t.Fatalf("Keys(Prefix) mismatch (-want +got):\n%s", diff)
	}
}

func TestKeysPatternAndMatchFunc(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	for _, key := range []string{"job:1", "job:2", "user:1"} {
		if err := replitdb.Set(ctx, client, key, 0); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	byPattern, err := client.Keys(ctx, replitdb.Pattern("job:*"))
	if err != nil {
		t.Fatalf("Keys(Pattern): %v", err)
	}
	if diff := cmp.Diff([]string{"job:1", "job:2"}, byPattern); diff != "" {
		t.Fatalf("Keys(Pattern) mismatch (-want +got):\n%s", diff)
	}

	byFunc, err := client.Keys(ctx, replitdb.MatchFunc(func(key string) bool {
		return strings.HasSuffix(key, ":1")
	}))
	if err != nil {
		t.Fatalf("Keys(MatchFunc): %v", err)
	}
	if diff := cmp.Diff([]string{"job:1", "user:1"}, byFunc); diff != "" {
		t.Fatalf("Keys(MatchFunc) mismatch (-want +got):\n%s", diff)
	}
}

func TestKeysInvalidPattern(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	if err := replitdb.Set(ctx, client, "a", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, err := client.Keys(ctx, replitdb.Pattern("[invalid"))
	if !errors.Is(err, path.ErrBadPattern) {
		t.Fatalf("expected path.ErrBadPattern, got %v", err)
	}
}

func TestListSkipsVanishedKeys(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := newTestClient(t, store)

	if err := replitdb.Set(ctx, client, "kept", counter{Count: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// A key that appears in the listing but is gone by the time its value
	// is fetched.
	store.mu.Lock()
	store.items["ghost"] = ""
	store.mu.Unlock()

	items, err := replitdb.List[counter](ctx, client, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Key != "kept" {
		t.Fatalf("expected only kept, got %#v", items)
	}

	values, err := replitdb.Values[counter](ctx, client, nil)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if diff := cmp.Diff([]counter{{Count: 1}}, values); diff != "" {
		t.Fatalf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteAbsentKeySucceeds(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	if err := client.Delete(ctx, "never-set"); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
}

func TestClearAndSize(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	for _, key := range []string{"a", "b", "c"} {
		if err := replitdb.Set(ctx, client, key, key); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	size, err := client.Size(ctx)
	if err != nil || size != 3 {
		t.Fatalf("Size = %d, %v; want 3, nil", size, err)
	}

	if err := client.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	size, err = client.Size(ctx)
	if err != nil || size != 0 {
		t.Fatalf("Size after Clear = %d, %v; want 0, nil", size, err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	if _, err := client.GetRaw(ctx, ""); !errors.Is(err, replitdb.ErrEmptyKey) {
		t.Fatalf("GetRaw: expected ErrEmptyKey, got %v", err)
	}
	if err := replitdb.Set(ctx, client, "", 1); !errors.Is(err, replitdb.ErrEmptyKey) {
		t.Fatalf("Set: expected ErrEmptyKey, got %v", err)
	}
	if err := client.Delete(ctx, ""); !errors.Is(err, replitdb.ErrEmptyKey) {
		t.Fatalf("Delete: expected ErrEmptyKey, got %v", err)
	}
}

func TestKeysNeedingEscaping(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeStore())

	key := "user/1 café"
	if err := replitdb.Set(ctx, client, key, counter{Count: 7}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := replitdb.Get[counter](ctx, client, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || item.Value.Count != 7 {
		t.Fatalf("unexpected item: %#v", item)
	}

	keys, err := client.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{key}, keys); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}

	if err := client.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := client.Has(ctx, key)
	if err != nil || ok {
		t.Fatalf("Has after delete = %v, %v; want false, nil", ok, err)
	}
}
