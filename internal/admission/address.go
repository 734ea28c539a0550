package admission

import (
	"net"
	"net/http"
	"strings"
)

// UnknownSource is used when no address can be derived from the request.
const UnknownSource = "unknown"

// SourceAddress derives the caller's address: the first X-Forwarded-For entry,
// else the host part of RemoteAddr, else UnknownSource.
func SourceAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote != "" {
		return remote
	}
	return UnknownSource
}
