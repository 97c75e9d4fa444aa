// Package listing mantiene el estado observable de la lista de compras:
// los items ordenados, el total en carrito y las notificaciones de una sola vez.
package listing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lelo88/shopping-list-golang/internal/items"
	"github.com/Lelo88/shopping-list-golang/internal/money"
	"github.com/Lelo88/shopping-list-golang/internal/notify"
)

// ErrorClosed se devuelve cuando el controller ya fue cerrado.
var ErrorClosed = errors.New("list controller closed")

const (
	// DefaultIdleTimeout es la ventana de gracia después del último observador.
	DefaultIdleTimeout = 5 * time.Second
	defaultRetryDelay  = time.Second
)

// Repository es lo que el controller necesita del repositorio de items.
type Repository interface {
	GetAll(ctx context.Context) (<-chan []items.Item, error)
	Insert(ctx context.Context, item items.Item) (items.Item, error)
	Update(ctx context.Context, item items.Item) error
	Delete(ctx context.Context, item items.Item) error
}

// State es una foto del estado de la lista. No se debe modificar: se comparte entre observadores.
// Synced es false mientras el valor viene de la cache y todavía no llegó una lectura fresca del store.
type State struct {
	Items       []items.Item `json:"items"`
	TotalInCart string       `json:"total_in_cart"`
	Synced      bool         `json:"synced"`
}

// Options configura el controller. Los valores cero usan defaults.
type Options struct {
	IdleTimeout  time.Duration
	Formatter    *money.Formatter
	EventsPolicy notify.Policy
	Logger       *zap.Logger
}

// Controller deriva el estado de la lista desde Repository.GetAll y recibe comandos.
//
// La suscripción al repositorio se abre con el primer observador y se mantiene viva
// IdleTimeout después de que se va el último; si nadie vuelve en ese lapso se cancela.
// El último estado queda en cache y se entrega al próximo observador mientras se recarga.
type Controller struct {
	repository  Repository
	formatter   *money.Formatter
	idleTimeout time.Duration
	retryDelay  time.Duration
	logger      *zap.Logger
	events      *notify.Channel[Event]

	mu             sync.Mutex
	state          State
	observers      map[uuid.UUID]chan State
	upstreamCancel context.CancelFunc
	upstreamGen    uint64
	idleTimer      *time.Timer
	closed         bool

	inflight sync.WaitGroup
}

// NewController crea el controller. No abre la suscripción hasta que haya un observador.
func NewController(repository Repository, options Options) *Controller {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.Formatter == nil {
		options.Formatter = money.MustFormatter("pt-BR", "BRL")
	}
	if options.IdleTimeout < 0 {
		options.IdleTimeout = 0
	}

	controller := &Controller{
		repository:  repository,
		formatter:   options.Formatter,
		idleTimeout: options.IdleTimeout,
		retryDelay:  defaultRetryDelay,
		logger:      options.Logger,
		events:      notify.New[Event](options.EventsPolicy, notify.DefaultBuffer),
		observers:   map[uuid.UUID]chan State{},
	}
	controller.state = controller.derive([]items.Item{}, false)
	return controller
}

// Events devuelve el canal de notificaciones de una sola vez (ItemDeleted, CommandFailed).
func (controller *Controller) Events() *notify.Channel[Event] {
	return controller.events
}

// State devuelve el último estado conocido sin abrir la suscripción.
func (controller *Controller) State() State {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.state
}

// Watch conecta un observador hasta que ctx termina. Recibe el estado actual de
// inmediato y después cada estado nuevo; si no lee a tiempo, solo conserva el último.
func (controller *Controller) Watch(ctx context.Context) <-chan State {
	updates := make(chan State, 1)

	controller.mu.Lock()
	if controller.closed {
		controller.mu.Unlock()
		close(updates)
		return updates
	}

	id := uuid.New()
	updates <- controller.state
	controller.observers[id] = updates

	if controller.idleTimer != nil {
		controller.idleTimer.Stop()
		controller.idleTimer = nil
	}
	if controller.upstreamCancel == nil {
		controller.startUpstreamLocked()
	}
	controller.mu.Unlock()

	go func() {
		<-ctx.Done()
		controller.detach(id)
	}()

	return updates
}

// Snapshot devuelve el primer estado sincronizado con el store.
// Si la suscripción sigue viva (dentro de la ventana de gracia) responde al instante.
func (controller *Controller) Snapshot(ctx context.Context) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := controller.Watch(ctx)
	for {
		select {
		case state, ok := <-updates:
			if !ok {
				return State{}, ErrorClosed
			}
			if state.Synced {
				return state, nil
			}
		case <-ctx.Done():
			return State{}, ctx.Err()
		}
	}
}

// ToggleInCart guarda el item con inCart reemplazado. No bloquea a quien llama.
func (controller *Controller) ToggleInCart(item items.Item, inCart bool) {
	updated := item.WithInCart(inCart)
	controller.launch(OpToggleInCart, updated, func(ctx context.Context) error {
		return controller.repository.Update(ctx, updated)
	}, nil)
}

// Delete borra el item y, si salió bien, emite ItemDeleted con su valor completo.
func (controller *Controller) Delete(item items.Item) {
	controller.launch(OpDelete, item, func(ctx context.Context) error {
		return controller.repository.Delete(ctx, item)
	}, func() {
		controller.events.Emit(ItemDeleted{Item: item})
	})
}

// UndoDelete reinserta el valor que se había borrado. El store conserva el id original.
func (controller *Controller) UndoDelete(item items.Item) {
	controller.launch(OpUndoDelete, item, func(ctx context.Context) error {
		_, err := controller.repository.Insert(ctx, item)
		return err
	}, nil)
}

// Close corta la suscripción, desconecta a los observadores y al consumidor de eventos.
// Los comandos en curso terminan igual, pero nadie recibe su resultado.
func (controller *Controller) Close() {
	controller.mu.Lock()
	if controller.closed {
		controller.mu.Unlock()
		return
	}
	controller.closed = true
	if controller.idleTimer != nil {
		controller.idleTimer.Stop()
		controller.idleTimer = nil
	}
	controller.stopUpstreamLocked()
	for id, updates := range controller.observers {
		close(updates)
		delete(controller.observers, id)
	}
	controller.mu.Unlock()

	controller.events.Close()
}

// Wait bloquea hasta que terminen los comandos lanzados.
func (controller *Controller) Wait() {
	controller.inflight.Wait()
}

func (controller *Controller) launch(op string, item items.Item, work func(ctx context.Context) error, onSuccess func()) {
	controller.mu.Lock()
	closed := controller.closed
	controller.mu.Unlock()
	if closed {
		controller.logger.Warn("command ignored, controller closed", zap.String("op", op), zap.Int64("item_id", item.ID))
		return
	}

	controller.inflight.Add(1)
	go func() {
		defer controller.inflight.Done()

		// Sin cancelación: la unidad de trabajo corre hasta el final aunque el controller se cierre.
		if err := work(context.Background()); err != nil {
			controller.logger.Error("list command failed",
				zap.String("op", op),
				zap.Int64("item_id", item.ID),
				zap.Error(err),
			)
			controller.events.Emit(CommandFailed{Op: op, Item: item, Err: err})
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	}()
}

func (controller *Controller) detach(id uuid.UUID) {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	updates, ok := controller.observers[id]
	if !ok {
		return
	}
	delete(controller.observers, id)
	close(updates)

	if len(controller.observers) > 0 || controller.upstreamCancel == nil {
		return
	}
	if controller.idleTimeout == 0 {
		controller.stopUpstreamLocked()
		return
	}

	gen := controller.upstreamGen
	controller.idleTimer = time.AfterFunc(controller.idleTimeout, func() {
		controller.evict(gen)
	})
}

// evict corta la suscripción si sigue sin observadores y no fue reemplazada.
func (controller *Controller) evict(gen uint64) {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if gen != controller.upstreamGen || len(controller.observers) > 0 || controller.upstreamCancel == nil {
		return
	}
	controller.idleTimer = nil
	controller.stopUpstreamLocked()
	controller.logger.Debug("list subscription evicted after idle timeout")
}

func (controller *Controller) startUpstreamLocked() {
	controller.upstreamGen++
	ctx, cancel := context.WithCancel(context.Background())
	controller.upstreamCancel = cancel

	go controller.follow(ctx, controller.upstreamGen)
}

func (controller *Controller) stopUpstreamLocked() {
	if controller.upstreamCancel == nil {
		return
	}
	controller.upstreamCancel()
	controller.upstreamCancel = nil
	controller.state.Synced = false
}

// follow consume el stream del repositorio. Si la carga inicial falla, reintenta
// cada retryDelay hasta que la suscripción se cancele.
func (controller *Controller) follow(ctx context.Context, gen uint64) {
	for {
		stream, err := controller.repository.GetAll(ctx)
		if err == nil {
			for list := range stream {
				controller.publish(gen, list)
			}
		} else {
			controller.logger.Error("subscribe to shopping items", zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(controller.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (controller *Controller) publish(gen uint64, list []items.Item) {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if gen != controller.upstreamGen || controller.upstreamCancel == nil {
		return
	}
	controller.state = controller.derive(list, true)
	for _, updates := range controller.observers {
		offerLatest(updates, controller.state)
	}
}

// derive calcula el total sumando solo los items en carrito que tienen precio.
func (controller *Controller) derive(list []items.Item, synced bool) State {
	prices := make([]*float64, 0, len(list))
	for _, item := range list {
		if item.InCart && item.Price != nil {
			prices = append(prices, item.Price)
		}
	}
	return State{
		Items:       list,
		TotalInCart: controller.formatter.Format(money.Sum(prices)),
		Synced:      synced,
	}
}

// offerLatest reemplaza el valor pendiente si el observador todavía no leyó el anterior.
func offerLatest(updates chan State, state State) {
	select {
	case updates <- state:
		return
	default:
	}
	select {
	case <-updates:
	default:
	}
	select {
	case updates <- state:
	default:
	}
}
