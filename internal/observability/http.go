package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta carries the request-scoped identifiers that travel with
// websocket connections and emitted events.
type RequestMeta struct {
	RequestID string
	DeviceID  string
	ClientIP  string
}

// MetaFromRequest extracts request correlation headers. The client IP
// honors the first X-Forwarded-For hop when a proxy set one.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		RequestID: r.Header.Get("X-Request-Id"),
		DeviceID:  r.Header.Get("X-Device-Id"),
		ClientIP:  clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
