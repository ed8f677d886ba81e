package httpx

import (
	"encoding/json"
	"net/http"
)

// Error writes the proxy's own error body format: {"error": "<message>"}.
// Downstream error bodies are never rewritten; this is only for failures the
// proxy produces itself.
func Error(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
