package editing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Lelo88/shopping-list-golang/internal/httpx"
	"github.com/Lelo88/shopping-list-golang/internal/items"
)

// Handler HTTP de alta/edición. Cada request usa su propio controller
// y espera el evento final del guardado antes de responder.
type Handler struct {
	factory *Factory
	logger  *zap.Logger
}

// NewHandler crea el handler de edición.
func NewHandler(factory *Factory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{factory: factory, logger: logger}
}

// saveInput es el formulario tal cual lo escribe el usuario: el precio llega como texto.
type saveInput struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

// GetByID maneja GET /items/{id}.
func (handler *Handler) GetByID(writer http.ResponseWriter, request *http.Request) {
	id, ok := parseID(writer, request)
	if !ok {
		return
	}

	controller := handler.factory.New()
	defer controller.Close()

	if !handler.load(writer, request, controller, id) {
		return
	}

	item, _ := controller.LoadedItem()
	httpx.OK(writer, request, http.StatusOK, item)
}

// Create maneja POST /items.
func (handler *Handler) Create(writer http.ResponseWriter, request *http.Request) {
	var input saveInput
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	controller := handler.factory.New()
	defer controller.Close()

	handler.save(writer, request, controller, input, http.StatusCreated)
}

// Update maneja PUT /items/{id}: reemplaza nombre, cantidad y precio; in_cart se conserva.
func (handler *Handler) Update(writer http.ResponseWriter, request *http.Request) {
	id, ok := parseID(writer, request)
	if !ok {
		return
	}

	var input saveInput
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	controller := handler.factory.New()
	defer controller.Close()

	if !handler.load(writer, request, controller, id) {
		return
	}

	handler.save(writer, request, controller, input, http.StatusOK)
}

func (handler *Handler) load(writer http.ResponseWriter, request *http.Request, controller *Controller, id int64) bool {
	err := controller.Load(request.Context(), id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, items.ErrorNotFound):
		httpx.Fail(writer, request, http.StatusNotFound, "not_found", "item not found")
	default:
		handler.logger.Error("load shopping item", zap.Int64("item_id", id), zap.Error(err))
		httpx.Fail(writer, request, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
	return false
}

// save dispara Save y traduce el primer evento final a la respuesta HTTP.
func (handler *Handler) save(writer http.ResponseWriter, request *http.Request, controller *Controller, input saveInput, successStatus int) {
	subscription := controller.Events().Attach()
	defer subscription.Detach()

	controller.Save(input.Name, input.Quantity, input.Price)

	ctx := request.Context()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				httpx.Fail(writer, request, http.StatusServiceUnavailable, "unavailable", "save did not finish in time")
			}
			return

		case event, ok := <-subscription.C:
			if !ok {
				httpx.Fail(writer, request, http.StatusServiceUnavailable, "unavailable", "edit session closed")
				return
			}

			switch event := event.(type) {
			case ValidationFailure:
				if event.Cleared() {
					continue
				}
				httpx.FailFields(writer, request, http.StatusUnprocessableEntity, "validation_failed", "invalid input data", event.fields())
			case SaveSuccess:
				httpx.OK(writer, request, successStatus, event.Item)
			case SaveFailure:
				if errors.Is(event.Err, items.ErrorNotFound) {
					httpx.Fail(writer, request, http.StatusNotFound, "not_found", "item not found")
					return
				}
				if errors.Is(event.Err, items.ErrorInvalidInput) {
					httpx.Fail(writer, request, http.StatusUnprocessableEntity, "invalid_input", event.Err.Error())
					return
				}
				httpx.Fail(writer, request, http.StatusInternalServerError, "internal_error", "unexpected error")
			}
			return
		}
	}
}

func parseID(writer http.ResponseWriter, request *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(request, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(writer, request, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
