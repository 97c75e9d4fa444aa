package store

import "sync"

// changeFeed avisa a los suscriptores que la tabla cambió.
// Cada suscriptor tiene un canal con buffer 1: varios cambios seguidos se coalescen en una sola señal.
type changeFeed struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subscribers: map[int]chan struct{}{}}
}

func (feed *changeFeed) subscribe() (<-chan struct{}, func()) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	id := feed.nextID
	feed.nextID++
	signal := make(chan struct{}, 1)
	feed.subscribers[id] = signal

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			feed.mu.Lock()
			defer feed.mu.Unlock()
			delete(feed.subscribers, id)
		})
	}
	return signal, unsubscribe
}

// publish nunca bloquea: si el suscriptor ya tiene una señal pendiente, alcanza con esa.
func (feed *changeFeed) publish() {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	for _, signal := range feed.subscribers {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}
