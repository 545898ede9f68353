package middleware

import (
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// ClientIP stores the caller address with goGuard.WithClientIP. With
// trustProxy set, the first X-Forwarded-For entry, then X-Real-IP, win over
// RemoteAddr. Only enable it behind a proxy that overwrites those headers.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RequestIP(r, trustProxy)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(goGuard.WithClientIP(r.Context(), ip)))
		})
	}
}

// RequestIP returns the caller address without a port.
func RequestIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
