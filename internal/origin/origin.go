// Package origin implements the browser Origin policy applied to WebSocket
// upgrades on the signaling endpoint.
package origin

import (
	"net/url"
	"strings"
)

// Normalize validates a browser Origin header and returns it in canonical
// scheme://host[:port] form. The special value "null" is allowed and returned
// as-is; browsers send it for sandboxed and file:// contexts.
func Normalize(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return trimmed, true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	return scheme + "://" + strings.ToLower(u.Host), true
}

// IsAllowed reports whether the request's Origin header passes the policy.
//
// An empty Origin is allowed: non-browser clients (ingest probes, CLI tools)
// don't send one, and the header carries no security value for them anyway.
// When allowed is empty the policy is same-host: the origin's host[:port]
// must equal the request's Host. Entries in allowed are either "*" or
// normalized origins produced by config parsing.
func IsAllowed(header, requestHost string, allowed []string) bool {
	if strings.TrimSpace(header) == "" {
		return true
	}

	normalized, ok := Normalize(header)
	if !ok {
		return false
	}

	if len(allowed) > 0 {
		for _, entry := range allowed {
			if entry == "*" || entry == normalized {
				return true
			}
		}
		return false
	}

	// Same-host default. Scheme is deliberately ignored: behind a
	// TLS-terminating proxy the request is HTTP while the browser Origin is
	// HTTPS.
	if normalized == "null" {
		return false
	}
	_, host, found := strings.Cut(normalized, "://")
	if !found {
		return false
	}
	return hostOnly(host) == hostOnly(strings.ToLower(strings.TrimSpace(requestHost)))
}

// hostOnly strips default ports so "example.com:443" and "example.com"
// compare equal regardless of how the proxy rewrote the Host header.
func hostOnly(hostport string) string {
	hostport = strings.TrimSuffix(hostport, ":80")
	hostport = strings.TrimSuffix(hostport, ":443")
	return hostport
}
