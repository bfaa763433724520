package replitdb

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultTrustedHost is the hostname of the hosted Replit Database service.
// Pass it to WithTrustedHost to reject endpoints pointing anywhere else.
const DefaultTrustedHost = "kv.replit.com"

// parseEndpoint validates and normalizes an endpoint URL. Only http and
// https schemes are accepted; when trustedHost is non-empty the hostname
// must match it exactly. The result keeps origin and path only, discarding
// credentials, query and fragment.
func parseEndpoint(raw, trustedHost string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrBadEndpoint)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBadEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrBadEndpoint, raw)
	}
	if trustedHost != "" && u.Hostname() != trustedHost {
		return nil, fmt.Errorf("%w: untrusted host %q", ErrBadEndpoint, u.Hostname())
	}

	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}
