package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/folio/internal/httpserver/mw"
)

func init() { Register(registerHealth) }

func registerHealth(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Get("/readyz", handlers.Readyz(d))
}

func init() { Register(registerAdmin) }

func registerAdmin(r chi.Router, d deps.Deps) {
	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger))
	admin.Get("/infra", handlers.Infra(d))
	admin.Post("/reload", handlers.Reload(d))
	if d.Metrics != nil {
		admin.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
}
