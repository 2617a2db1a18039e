package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used to key per-client limits and audit entries. The
// first parseable X-Forwarded-For hop wins, then X-Real-IP, then the connection address.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := normaliseIP(hop); ip != "" {
			return ip
		}
	}
	if ip := normaliseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := normaliseIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// normaliseIP strips an optional port and rejects values that are not IP addresses.
func normaliseIP(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip := net.ParseIP(strings.Trim(s, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
