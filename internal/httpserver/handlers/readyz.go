package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports ready once the resolver accepts work. Redis is optional:
// the service runs from memory when it is down, so it does not gate readiness.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Resolver == nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Reason: "resolver not initialized"})
			return
		}
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := d.Store.Ping(ctx); err != nil {
				writeJSON(w, http.StatusOK, readyzResponse{Ready: true, Reason: "redis unavailable, serving from memory"})
				return
			}
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
