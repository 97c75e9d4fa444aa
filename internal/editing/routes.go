package editing

import "github.com/go-chi/chi/v5"

// RegisterRoutes registra alta, lectura y edición dentro de /items.
func RegisterRoutes(route chi.Router, handler *Handler) {
	route.Post("/", handler.Create)
	route.Get("/{id}", handler.GetByID)
	route.Put("/{id}", handler.Update)
}
