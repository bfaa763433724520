// Package kvwire implements the wire encoding used by the Replit Database
// HTTP protocol: percent-escaped key path segments, form-urlencoded write
// bodies, and newline-delimited percent-encoded key listings.
package kvwire

import (
	"fmt"
	"net/url"
	"strings"
)

// EscapeKey escapes a key for use as a URL path segment.
func EscapeKey(key string) string {
	return url.PathEscape(key)
}

// EncodeSetForm encodes a key and its serialized JSON value as a
// form-urlencoded request body.
func EncodeSetForm(key string, raw []byte) url.Values {
	return url.Values{key: []string{string(raw)}}
}

// ParseKeyList decodes the newline-delimited, percent-encoded key list
// returned by the store. An empty body means no keys.
func ParseKeyList(body []byte) ([]string, error) {
	text := strings.TrimRight(string(body), "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, err := url.PathUnescape(line)
		if err != nil {
			return nil, fmt.Errorf("kvwire: decode key %q: %w", line, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
