package listing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Lelo88/shopping-list-golang/internal/httpx"
	"github.com/Lelo88/shopping-list-golang/internal/items"
	"github.com/Lelo88/shopping-list-golang/internal/notify"
)

// ControllerAPI define lo que el handler necesita del controller de la lista.
type ControllerAPI interface {
	Snapshot(ctx context.Context) (State, error)
	Watch(ctx context.Context) <-chan State
	Events() *notify.Channel[Event]
	ToggleInCart(item items.Item, inCart bool)
	Delete(item items.Item)
	UndoDelete(item items.Item)
}

// Handler HTTP de la lista. Los comandos son fire-and-forget: responden 202
// y el resultado llega por /events (estado nuevo o command_failed).
type Handler struct {
	controller ControllerAPI
	logger     *zap.Logger
}

// NewHandler crea el handler de la lista.
func NewHandler(controller ControllerAPI, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{controller: controller, logger: logger}
}

type listResponse struct {
	Items       []items.Item `json:"items"`
	TotalInCart string       `json:"total_in_cart"`
}

type toggleInput struct {
	InCart *bool `json:"in_cart"`
}

type commandFailedBody struct {
	Op      string     `json:"op"`
	Item    items.Item `json:"item"`
	Message string     `json:"message"`
}

// List maneja GET /items.
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	state, err := handler.controller.Snapshot(request.Context())
	if err != nil {
		handler.failSnapshot(writer, request, err)
		return
	}

	httpx.OK(writer, request, http.StatusOK, listResponse{Items: state.Items, TotalInCart: state.TotalInCart})
}

// ToggleCart maneja PATCH /items/{id}/cart.
func (handler *Handler) ToggleCart(writer http.ResponseWriter, request *http.Request) {
	var input toggleInput
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	if input.InCart == nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_input", "in_cart is required")
		return
	}

	item, ok := handler.findItem(writer, request)
	if !ok {
		return
	}

	handler.controller.ToggleInCart(item, *input.InCart)
	httpx.OK(writer, request, http.StatusAccepted, item.WithInCart(*input.InCart))
}

// Delete maneja DELETE /items/{id}. Devuelve el item borrado para poder deshacer con /items/restore.
func (handler *Handler) Delete(writer http.ResponseWriter, request *http.Request) {
	item, ok := handler.findItem(writer, request)
	if !ok {
		return
	}

	handler.controller.Delete(item)
	httpx.OK(writer, request, http.StatusAccepted, item)
}

// Restore maneja POST /items/restore: reinserta un item borrado con su id original.
func (handler *Handler) Restore(writer http.ResponseWriter, request *http.Request) {
	var item items.Item
	if err := json.NewDecoder(request.Body).Decode(&item); err != nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	if item.ID <= 0 || strings.TrimSpace(item.Name) == "" || strings.TrimSpace(item.Quantity) == "" {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_input", "id, name and quantity are required")
		return
	}
	if item.Price != nil && *item.Price < 0 {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_input", "price must not be negative")
		return
	}

	handler.controller.UndoDelete(item)
	httpx.OK(writer, request, http.StatusAccepted, item)
}

// Events maneja GET /events: un stream SSE con cada estado nuevo de la lista y
// las notificaciones de una sola vez. Solo hay un consumidor de notificaciones:
// si se conecta otro, este stream recibe "detached" y se cierra.
func (handler *Handler) Events(writer http.ResponseWriter, request *http.Request) {
	stream, err := httpx.NewEventStream(writer)
	if err != nil {
		httpx.Fail(writer, request, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	ctx := request.Context()
	subscription := handler.controller.Events().Attach()
	defer subscription.Detach()
	states := handler.controller.Watch(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-states:
			if !ok {
				return
			}
			if err := stream.Send("state", state); err != nil {
				handler.logger.Warn("send state event", zap.Error(err))
				return
			}

		case event, ok := <-subscription.C:
			if !ok {
				_ = stream.Send("detached", map[string]string{"subscription_id": subscription.ID.String()})
				return
			}
			if err := stream.Send(event.Kind(), eventBody(event)); err != nil {
				handler.logger.Warn("send notification event", zap.String("kind", event.Kind()), zap.Error(err))
				return
			}
		}
	}
}

func eventBody(event Event) any {
	if failed, ok := event.(CommandFailed); ok {
		return commandFailedBody{Op: failed.Op, Item: failed.Item, Message: failed.Err.Error()}
	}
	return event
}

// findItem busca el item del path en el estado actual de la lista.
// Escribe la respuesta de error y devuelve false si no se puede.
func (handler *Handler) findItem(writer http.ResponseWriter, request *http.Request) (items.Item, bool) {
	id, err := parseID(request)
	if err != nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return items.Item{}, false
	}

	state, err := handler.controller.Snapshot(request.Context())
	if err != nil {
		handler.failSnapshot(writer, request, err)
		return items.Item{}, false
	}

	for _, item := range state.Items {
		if item.ID == id {
			return item, true
		}
	}
	httpx.Fail(writer, request, http.StatusNotFound, "not_found", "item not found")
	return items.Item{}, false
}

func (handler *Handler) failSnapshot(writer http.ResponseWriter, request *http.Request, err error) {
	switch {
	case errors.Is(err, ErrorClosed):
		httpx.Fail(writer, request, http.StatusServiceUnavailable, "unavailable", "list is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.Fail(writer, request, http.StatusServiceUnavailable, "unavailable", "list is not available yet")
	default:
		handler.logger.Error("list snapshot", zap.Error(err))
		httpx.Fail(writer, request, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func parseID(request *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(request, "id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
