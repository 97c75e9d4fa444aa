// Package notify entrega eventos de una sola vez ("one-shot") a un único consumidor.
//
// Un evento se entrega como máximo una vez, al consumidor que esté conectado al
// momento de emitirlo. Qué pasa cuando no hay nadie conectado es una decisión
// explícita (Policy), no un efecto secundario del canal.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Policy define qué hacer con los eventos emitidos sin consumidor conectado.
type Policy int

const (
	// DropWhenDetached descarta el evento: no hay replay para quien se conecte después.
	DropWhenDetached Policy = iota
	// QueueUntilAttached guarda hasta Buffer eventos y los entrega al próximo Attach.
	QueueUntilAttached
)

// DefaultBuffer es la capacidad por defecto del canal de cada suscripción.
const DefaultBuffer = 16

// Channel es un canal de notificaciones de consumidor único con attach/detach explícito.
type Channel[T any] struct {
	mu      sync.Mutex
	policy  Policy
	buffer  int
	current *Subscription[T]
	pending []T
	closed  bool
}

// Subscription representa al consumidor conectado.
// C se cierra cuando la suscripción termina (Detach, reemplazo o Close del canal).
type Subscription[T any] struct {
	ID uuid.UUID
	C  <-chan T

	owner  *Channel[T]
	events chan T
}

// New crea un canal con la política indicada. buffer <= 0 usa DefaultBuffer.
func New[T any](policy Policy, buffer int) *Channel[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel[T]{policy: policy, buffer: buffer}
}

// Attach conecta un consumidor nuevo. Si había otro conectado, se lo desconecta
// (su canal se cierra): solo existe un consumidor a la vez.
// Con QueueUntilAttached, los eventos pendientes se entregan primero.
func (channel *Channel[T]) Attach() *Subscription[T] {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	events := make(chan T, channel.buffer)
	subscription := &Subscription[T]{
		ID:     uuid.New(),
		C:      events,
		owner:  channel,
		events: events,
	}

	if channel.closed {
		close(events)
		return subscription
	}

	if channel.current != nil {
		close(channel.current.events)
	}
	channel.current = subscription

	for _, event := range channel.pending {
		events <- event
	}
	channel.pending = nil

	return subscription
}

// Emit entrega el evento al consumidor conectado sin bloquear.
// Devuelve true si quedó entregado (o encolado, según la política).
// Con el buffer lleno el evento se descarta.
func (channel *Channel[T]) Emit(event T) bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	if channel.closed {
		return false
	}

	if channel.current == nil {
		if channel.policy != QueueUntilAttached || len(channel.pending) >= channel.buffer {
			return false
		}
		channel.pending = append(channel.pending, event)
		return true
	}

	select {
	case channel.current.events <- event:
		return true
	default:
		return false
	}
}

// Attached indica si hay un consumidor conectado.
func (channel *Channel[T]) Attached() bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	return channel.current != nil
}

// Close desconecta al consumidor y descarta todo lo que se emita después.
func (channel *Channel[T]) Close() {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	if channel.closed {
		return
	}
	channel.closed = true
	channel.pending = nil
	if channel.current != nil {
		close(channel.current.events)
		channel.current = nil
	}
}

// Detach desconecta la suscripción. Es idempotente y no afecta a una suscripción más nueva.
func (subscription *Subscription[T]) Detach() {
	channel := subscription.owner
	channel.mu.Lock()
	defer channel.mu.Unlock()

	if channel.current != subscription {
		return
	}
	close(subscription.events)
	channel.current = nil
}
