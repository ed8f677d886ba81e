package mw

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kinohub/strangler-proxy/internal/netx"
	"github.com/kinohub/strangler-proxy/internal/ratelimit"
)

// RateLimitConfig is the per-service limit guarding a backend while its
// traffic share shifts. Keyed by client IP; there is no user identity at the
// proxy.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   float64
	Service string
}

type IPResolver struct {
	Trusted *netx.CIDRSet
}

func (r IPResolver) ClientIP(req *http.Request) string {
	remoteIP := parseRemoteIP(req.RemoteAddr)
	if remoteIP != nil && r.Trusted != nil && r.Trusted.Contains(remoteIP) {
		// Only trust forwarded headers from trusted proxies
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			// first IP is original client (left-most)
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := net.ParseIP(strings.TrimSpace(parts[0]))
				if ip != nil {
					return ip.String()
				}
			}
		}
		if xrip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-Ip"))); xrip != nil {
			return xrip.String()
		}
	}
	if remoteIP != nil {
		return remoteIP.String()
	}
	return req.RemoteAddr
}

func parseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(remoteAddr)
	}
	return net.ParseIP(host)
}

func RateLimit(limiter ratelimit.Limiter, ipr IPResolver, cfg RateLimitConfig, next http.Handler) http.Handler {
	if !cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "rl:" + cfg.Service + ":ip:" + ipr.ClientIP(r)

		dec, err := limiter.Allow(r.Context(), key, cfg.RPS, cfg.Burst, 1)
		if err != nil {
			// Fail-open so a limiter-backend outage cannot take the
			// whole ingress down with it.
			next.ServeHTTP(w, r)
			return
		}

		if !dec.Allowed {
			retry := dec.RetryAfterSeconds
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retry)*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":               "rate_limited",
				"service":             cfg.Service,
				"retry_after_seconds": retry,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
