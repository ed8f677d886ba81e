package mw

import (
	"net/http"

	"github.com/kinohub/strangler-proxy/internal/httpx"
)

// MaxBodyBytes caps inbound bodies. The forwarder buffers the whole body
// before relaying, so an explicit cap keeps one client from holding the
// proxy's memory hostage.
func MaxBodyBytes(limit int64, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fast fail when Content-Length is known.
		if r.ContentLength > limit && r.ContentLength != -1 {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		// Safety net for chunked bodies; the forwarder maps the read
		// error to 413.
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
