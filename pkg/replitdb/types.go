package replitdb

import (
	"errors"
	"fmt"
	"strings"
)

// Item represents a stored key/value pair. It is both the element type
// returned by List and the entry type accepted by SetEntries.
type Item[T any] struct {
	Key   string
	Value T
}

var (
	// ErrEmptyKey is returned when an operation receives an empty key.
	ErrEmptyKey = errors.New("replitdb: key must not be empty")
	// ErrBadEndpoint is returned when an endpoint URL cannot be used.
	ErrBadEndpoint = errors.New("replitdb: invalid endpoint")
	// ErrNoEnvEndpoint is returned by RefreshEndpoint when the client's
	// endpoint was not resolved from the environment.
	ErrNoEnvEndpoint = errors.New("replitdb: endpoint is not resolved from the environment")
)

// RemoteError represents a non-success HTTP status returned by the store.
type RemoteError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("replitdb: remote error: status=%d %s body=%s", e.StatusCode, e.Status, string(e.Body))
}

// BatchError aggregates the failures of a batch operation executed under the
// settle-all policy. Its message deduplicates identical error texts; the
// full ordered error list remains available through Unwrap.
type BatchError struct {
	errs []error
}

func newBatchError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &BatchError{errs: errs}
}

func (e *BatchError) Error() string {
	seen := make(map[string]struct{}, len(e.errs))
	msgs := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		msg := err.Error()
		if _, ok := seen[msg]; ok {
			continue
		}
		seen[msg] = struct{}{}
		msgs = append(msgs, msg)
	}
	return fmt.Sprintf("replitdb: %d batch operation(s) failed: %s", len(e.errs), strings.Join(msgs, "; "))
}

// Unwrap exposes every collected failure in batch order, duplicates
// included, so errors.Is and errors.As see through the aggregate.
func (e *BatchError) Unwrap() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}
