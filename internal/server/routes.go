package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/taskbot/internal/api/v1"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterSessionRoutes(api, deps.Sessions)
	v1.RegisterEmployeeRoutes(api, deps.Directory)
}

func registerWebhookRoutes(r chi.Router, handler http.HandlerFunc) {
	r.Post("/messages", handler)
}

func registerSlackRoutes(r chi.Router, handler http.HandlerFunc) {
	r.Post("/events", handler)
}
