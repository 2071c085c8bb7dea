package api

import (
	"net/http"

	"github.com/goccy/go-json"
)

// health reports a per-dependency flag map (§2 Component J) rather than
// a bare 200, so an operator can see which backing service degraded
// without reading logs.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	flags := map[string]bool{}
	if h.deps.HealthCheck != nil {
		flags = h.deps.HealthCheck()
	}

	status := http.StatusOK
	for _, ok := range flags {
		if !ok {
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, map[string]any{"status": status == http.StatusOK, "dependencies": flags})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
