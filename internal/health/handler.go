package health

import (
	"context"
	"net/http"
	"time"

	"github.com/Lelo88/shopping-list-golang/internal/httpx"
)

const readyTimeout = 2 * time.Second

// Pinger es lo único que /ready necesita del store (postgres o memoria).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler encapsula endpoints de health.
type Handler struct {
	store Pinger
}

// New crea un handler de health. store puede ser nil: /ready responde 503.
func New(store Pinger) *Handler {
	return &Handler{store: store}
}

// Health indica si el proceso está vivo. No toca el store.
func (handler *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready indica si el store responde.
func (handler *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if handler.store == nil {
		httpx.Fail(w, r, http.StatusServiceUnavailable, "not_ready", "store not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := handler.store.Ping(ctx); err != nil {
		httpx.Fail(w, r, http.StatusServiceUnavailable, "not_ready", "store is not reachable")
		return
	}

	httpx.OK(w, r, http.StatusOK, map[string]any{"status": "ready"})
}
