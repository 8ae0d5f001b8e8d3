package common

import (
	"net/http"
	"strings"
)

// SecureContext reports whether the request reached the server over TLS,
// either directly or via a terminating proxy.
func SecureContext(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
