package mw

import (
	"net/http"

	"github.com/kinohub/strangler-proxy/internal/httpx"
)

// Recover keeps a panicking handler from tearing down the connection without
// a response. The process itself never terminates on a relay failure.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpx.Error(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
