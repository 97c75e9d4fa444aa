// Package editing implementa la pantalla de alta/edición de un item:
// carga opcional, validación campo por campo y guardado asincrónico.
package editing

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Lelo88/shopping-list-golang/internal/items"
	"github.com/Lelo88/shopping-list-golang/internal/money"
	"github.com/Lelo88/shopping-list-golang/internal/notify"
)

// Repository es lo que el controller necesita del repositorio de items.
type Repository interface {
	GetByID(ctx context.Context, id int64) (items.Item, bool, error)
	Insert(ctx context.Context, item items.Item) (items.Item, error)
	Update(ctx context.Context, item items.Item) error
}

// Options configura los controllers que crea la Factory.
type Options struct {
	EventsPolicy notify.Policy
	Logger       *zap.Logger
}

// Factory crea un controller nuevo por sesión de edición.
type Factory struct {
	repository Repository
	options    Options
}

// NewFactory crea la factory compartida por todas las sesiones.
func NewFactory(repository Repository, options Options) *Factory {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return &Factory{repository: repository, options: options}
}

// New crea un controller en modo alta (sin item cargado).
func (factory *Factory) New() *Controller {
	return &Controller{
		repository: factory.repository,
		logger:     factory.options.Logger,
		events:     notify.New[Event](factory.options.EventsPolicy, notify.DefaultBuffer),
	}
}

// Controller mantiene el item cargado (si hay) y procesa Save.
type Controller struct {
	repository Repository
	logger     *zap.Logger
	events     *notify.Channel[Event]

	mu     sync.Mutex
	loaded *items.Item
	closed bool

	inflight sync.WaitGroup
}

// Events devuelve el canal de notificaciones (ValidationFailure, SaveSuccess, SaveFailure).
func (controller *Controller) Events() *notify.Channel[Event] {
	return controller.events
}

// Load carga el item a editar. items.CreateFlowID no hace nada (modo alta).
// Un id inexistente devuelve items.ErrorNotFound y el controller sigue en modo alta.
func (controller *Controller) Load(ctx context.Context, id int64) error {
	if id == items.CreateFlowID {
		return nil
	}

	item, found, err := controller.repository.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return items.ErrorNotFound
	}

	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.loaded = &item
	return nil
}

// LoadedItem devuelve el item cargado, si hay uno.
func (controller *Controller) LoadedItem() (items.Item, bool) {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if controller.loaded == nil {
		return items.Item{}, false
	}
	return *controller.loaded, true
}

// Save valida en orden (nombre, cantidad, precio) y corta en el primer error.
// Si todo es válido emite un ValidationFailure vacío, guarda en segundo plano
// y después emite SaveSuccess o SaveFailure.
func (controller *Controller) Save(name, quantity, priceText string) {
	name = strings.TrimSpace(name)
	quantity = strings.TrimSpace(quantity)
	priceText = strings.TrimSpace(priceText)

	if name == "" {
		controller.events.Emit(ValidationFailure{NameError: MessageNameRequired})
		return
	}
	if quantity == "" {
		controller.events.Emit(ValidationFailure{QuantityError: MessageQuantityRequired})
		return
	}

	// Texto vacío es "sin precio", no cero.
	var price *float64
	if priceText != "" {
		value, err := money.ParsePrice(priceText)
		if err != nil {
			controller.events.Emit(ValidationFailure{PriceError: MessageInvalidPrice})
			return
		}
		price = &value
	}

	controller.mu.Lock()
	if controller.closed {
		controller.mu.Unlock()
		return
	}
	item := items.Item{ID: items.UnsavedID, Name: name, Quantity: quantity, Price: price}
	editing := controller.loaded != nil
	if editing {
		item.ID = controller.loaded.ID
		item.InCart = controller.loaded.InCart
	}
	controller.inflight.Add(1)
	controller.mu.Unlock()

	controller.events.Emit(ValidationFailure{})

	go func() {
		defer controller.inflight.Done()

		saved, err := controller.write(editing, item)
		if err != nil {
			controller.logger.Error("save shopping item",
				zap.Bool("editing", editing),
				zap.Int64("item_id", item.ID),
				zap.Error(err),
			)
			controller.events.Emit(SaveFailure{Err: err})
			return
		}
		controller.events.Emit(SaveSuccess{Item: saved})
	}()
}

func (controller *Controller) write(editing bool, item items.Item) (items.Item, error) {
	ctx := context.Background()
	if editing {
		if err := controller.repository.Update(ctx, item); err != nil {
			return items.Item{}, err
		}
		return item, nil
	}
	return controller.repository.Insert(ctx, item)
}

// Wait bloquea hasta que terminen los guardados en curso.
func (controller *Controller) Wait() {
	controller.inflight.Wait()
}

// Close desconecta al consumidor. Un guardado en curso termina, pero nadie ve el resultado.
func (controller *Controller) Close() {
	controller.mu.Lock()
	controller.closed = true
	controller.mu.Unlock()

	controller.events.Close()
}
