package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
)

func init() { Register(registerAnchors) }

func registerAnchors(r chi.Router, d deps.Deps) {
	r.Route("/anchors", func(r chi.Router) {
		r.Post("/", handlers.CreateAnchor(d))
		r.Post("/recover", handlers.RecoverAnchors(d))
	})
}
