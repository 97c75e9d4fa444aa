package listing

import "github.com/go-chi/chi/v5"

// RegisterRoutes registra las rutas de la lista dentro de /items.
func RegisterRoutes(route chi.Router, handler *Handler) {
	route.Get("/", handler.List)
	route.Post("/restore", handler.Restore)
	route.Patch("/{id}/cart", handler.ToggleCart)
	route.Delete("/{id}", handler.Delete)
}

// RegisterEventRoutes registra el stream SSE. Va fuera del timeout de requests.
func RegisterEventRoutes(route chi.Router, handler *Handler) {
	route.Get("/events", handler.Events)
}
