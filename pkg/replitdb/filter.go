package replitdb

import (
	"fmt"
	"path"
)

// Filter selects which keys an enumeration operation returns. A nil Filter
// selects every key. Prefix filters are applied server-side through the
// store's prefix query parameter; Pattern and MatchFunc list all keys and
// filter client-side.
type Filter interface {
	serverPrefix() string
	keep(key string) (bool, error)
}

// Prefix selects keys starting with p. An empty prefix selects all keys.
func Prefix(p string) Filter {
	return prefixFilter(p)
}

// Pattern selects keys matching a path.Match glob pattern.
func Pattern(glob string) Filter {
	return patternFilter(glob)
}

// MatchFunc selects keys for which fn returns true.
func MatchFunc(fn func(key string) bool) Filter {
	return matchFilter(fn)
}

type prefixFilter string

func (f prefixFilter) serverPrefix() string {
	return string(f)
}

func (f prefixFilter) keep(string) (bool, error) {
	// Already narrowed by the server.
	return true, nil
}

type patternFilter string

func (f patternFilter) serverPrefix() string {
	return ""
}

func (f patternFilter) keep(key string) (bool, error) {
	ok, err := path.Match(string(f), key)
	if err != nil {
		return false, fmt.Errorf("replitdb: invalid key pattern %q: %w", string(f), err)
	}
	return ok, nil
}

type matchFilter func(string) bool

func (f matchFilter) serverPrefix() string {
	return ""
}

func (f matchFilter) keep(key string) (bool, error) {
	return f(key), nil
}
