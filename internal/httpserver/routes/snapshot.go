package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/folio/internal/httpserver/mw"
)

func init() { Register(registerSnapshot) }

func registerSnapshot(r chi.Router, d deps.Deps) {
	cfg := mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitRefill,
		MaxEntries:        10_000,
		TrustProxy:        d.TrustProxy,
	}
	if d.Metrics != nil {
		cfg.OnReject = d.Metrics.RateLimited
	}
	limited := r.With(mw.RateLimit(cfg))
	limited.Get("/snapshot", handlers.Snapshot(d))
	limited.Get("/view", handlers.View(d))
}
