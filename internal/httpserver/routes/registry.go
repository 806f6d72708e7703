// Package routes collects the HTTP routes. Each file registers its own group
// from init and RegisterAll mounts them in registration order.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var registry []entry

// Register adds a registrar with optional middlewares applied to its whole group.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterAll mounts every registrar on r. Called once from NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		target := r
		if len(e.mws) > 0 {
			target = r.With(e.mws...)
		}
		e.reg(target, d)
	}
	if d.Logger != nil {
		logRoutes(r, d.Logger)
	}
}

func logRoutes(r chi.Routes, log logger.Logger) {
	_ = chi.Walk(r, func(method, route string, _ http.Handler, mws ...func(http.Handler) http.Handler) error {
		log.Debug("Route registered",
			logger.String("method", method),
			logger.String("route", route),
			logger.Int("middlewares", len(mws)))
		return nil
	})
}
