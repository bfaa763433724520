// Package mock implements an in-memory replacement for the Replit Database,
// suitable for tests and offline development. Mock satisfies
// replitdb.Backend and mirrors the store's observable behaviour: absent keys
// read as nil, deletes are idempotent, and key listings are prefix-filtered.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hugoalh/replit-database-client-go/internal/devseed"
)

// Mock is an in-memory key-value store.
type Mock struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// New creates an empty mock store.
func New() *Mock {
	return &Mock{items: make(map[string][]byte)}
}

// Seed loads initial items, typically decoded via devseed.Load.
func (m *Mock) Seed(entries []devseed.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("mock replitdb: seed entry missing key")
		}
		raw, err := e.Raw()
		if err != nil {
			return err
		}
		m.items[e.Key] = raw
	}
	return nil
}

// Get returns the stored JSON text for key, or nil when absent.
func (m *Mock) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

// Set stores raw as the JSON text for key.
func (m *Mock) Set(ctx context.Context, key string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = append([]byte(nil), raw...)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Mock) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// ListKeys returns the keys starting with prefix, sorted.
func (m *Mock) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *Mock) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
