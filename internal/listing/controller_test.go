package listing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lelo88/shopping-list-golang/internal/items"
	"github.com/Lelo88/shopping-list-golang/internal/notify"
	"github.com/Lelo88/shopping-list-golang/internal/store"
)

// fakeRepository envuelve un repositorio real sobre store.Memory y permite forzar errores.
type fakeRepository struct {
	*items.Repository

	mu          sync.Mutex
	getAllErr   error
	getAllCalls int
	updateErr   error
	deleteErr   error
	insertErr   error
}

func newFakeRepository(t *testing.T, seed ...items.Item) (*fakeRepository, *store.Memory) {
	t.Helper()

	memory := store.NewMemory()
	repository := items.NewRepository(memory, nil)
	for _, item := range seed {
		_, err := repository.Insert(context.Background(), item)
		require.NoError(t, err)
	}
	return &fakeRepository{Repository: repository}, memory
}

func (fake *fakeRepository) GetAll(ctx context.Context) (<-chan []items.Item, error) {
	fake.mu.Lock()
	fake.getAllCalls++
	err := fake.getAllErr
	fake.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return fake.Repository.GetAll(ctx)
}

func (fake *fakeRepository) Update(ctx context.Context, item items.Item) error {
	fake.mu.Lock()
	err := fake.updateErr
	fake.mu.Unlock()
	if err != nil {
		return err
	}
	return fake.Repository.Update(ctx, item)
}

func (fake *fakeRepository) Delete(ctx context.Context, item items.Item) error {
	fake.mu.Lock()
	err := fake.deleteErr
	fake.mu.Unlock()
	if err != nil {
		return err
	}
	return fake.Repository.Delete(ctx, item)
}

func (fake *fakeRepository) Insert(ctx context.Context, item items.Item) (items.Item, error) {
	fake.mu.Lock()
	err := fake.insertErr
	fake.mu.Unlock()
	if err != nil {
		return items.Item{}, err
	}
	return fake.Repository.Insert(ctx, item)
}

func (fake *fakeRepository) setGetAllErr(err error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.getAllErr = err
}

func (fake *fakeRepository) calls() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.getAllCalls
}

func price(value float64) *float64 {
	return &value
}

// nextSynced espera el próximo estado sincronizado que cumpla match.
func nextSynced(t *testing.T, updates <-chan State, match func(State) bool) State {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state, ok := <-updates:
			require.True(t, ok, "updates channel closed")
			if state.Synced && match(state) {
				return state
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
			return State{}
		}
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func anyState(State) bool { return true }

func names(list []items.Item) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, item.Name)
	}
	return out
}

func TestControllerWatch(t *testing.T) {
	t.Run("emits cached state first and then the synced list", func(t *testing.T) {
		repository, _ := newFakeRepository(t,
			items.Item{Name: "Milk", Quantity: "1", Price: price(4.5), InCart: true},
			items.Item{Name: "Bread", Quantity: "2", Price: price(8), InCart: false},
		)
		controller := NewController(repository, Options{IdleTimeout: time.Second})
		t.Cleanup(controller.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates := controller.Watch(ctx)

		first := <-updates
		require.False(t, first.Synced)
		require.Empty(t, first.Items)
		require.Equal(t, "R$ 0,00", first.TotalInCart)

		state := nextSynced(t, updates, anyState)
		require.Equal(t, []string{"Bread", "Milk"}, names(state.Items))
		require.Equal(t, "R$ 4,50", state.TotalInCart)
	})

	t.Run("total ignores items without price or outside the cart", func(t *testing.T) {
		repository, _ := newFakeRepository(t,
			items.Item{Name: "Apples", Quantity: "6", Price: price(12.5), InCart: true},
			items.Item{Name: "Beans", Quantity: "1", Price: nil, InCart: true},
			items.Item{Name: "Cheese", Quantity: "1", Price: price(30), InCart: false},
		)
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		state, err := controller.Snapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, "R$ 12,50", state.TotalInCart)
		require.Len(t, state.Items, 3)
	})

	t.Run("store changes reach every observer", func(t *testing.T) {
		repository, _ := newFakeRepository(t)
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		first := controller.Watch(ctx)
		second := controller.Watch(ctx)
		nextSynced(t, first, anyState)

		_, err := repository.Insert(context.Background(), items.Item{Name: "Eggs", Quantity: "12"})
		require.NoError(t, err)

		hasEggs := func(state State) bool { return len(state.Items) == 1 }
		require.Equal(t, []string{"Eggs"}, names(nextSynced(t, first, hasEggs).Items))
		require.Equal(t, []string{"Eggs"}, names(nextSynced(t, second, hasEggs).Items))
	})

	t.Run("slow observer only keeps the latest state", func(t *testing.T) {
		updates := make(chan State, 1)
		offerLatest(updates, State{TotalInCart: "first"})
		offerLatest(updates, State{TotalInCart: "second"})
		offerLatest(updates, State{TotalInCart: "third"})

		require.Equal(t, "third", (<-updates).TotalInCart)
		require.Empty(t, updates)
	})

	t.Run("closed controller returns a closed channel", func(t *testing.T) {
		repository, _ := newFakeRepository(t)
		controller := NewController(repository, Options{})
		controller.Close()

		_, ok := <-controller.Watch(context.Background())
		require.False(t, ok)

		_, err := controller.Snapshot(context.Background())
		require.ErrorIs(t, err, ErrorClosed)
	})

	t.Run("retries the initial load after an error", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Rice", Quantity: "1"})
		repository.setGetAllErr(errors.New("store offline"))

		controller := NewController(repository, Options{})
		controller.retryDelay = 10 * time.Millisecond
		t.Cleanup(controller.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates := controller.Watch(ctx)

		require.Eventually(t, func() bool { return repository.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
		repository.setGetAllErr(nil)

		state := nextSynced(t, updates, anyState)
		require.Equal(t, []string{"Rice"}, names(state.Items))
	})
}

func TestControllerIdleEviction(t *testing.T) {
	t.Run("reattach inside the grace window reuses the subscription", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{IdleTimeout: time.Minute})
		t.Cleanup(controller.Close)

		_, err := controller.Snapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, repository.calls())

		state, err := controller.Snapshot(context.Background())
		require.NoError(t, err)
		require.True(t, state.Synced)
		require.Equal(t, 1, repository.calls())
	})

	t.Run("subscription is cancelled after the grace window", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{IdleTimeout: 20 * time.Millisecond})
		t.Cleanup(controller.Close)

		_, err := controller.Snapshot(context.Background())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return !controller.State().Synced
		}, 2*time.Second, 5*time.Millisecond)

		cached := controller.State()
		require.Equal(t, []string{"Milk"}, names(cached.Items))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates := controller.Watch(ctx)

		first := <-updates
		require.False(t, first.Synced)
		require.Equal(t, []string{"Milk"}, names(first.Items))

		nextSynced(t, updates, anyState)
		require.Equal(t, 2, repository.calls())
	})

	t.Run("zero idle timeout cancels as soon as the last observer leaves", func(t *testing.T) {
		repository, _ := newFakeRepository(t)
		controller := NewController(repository, Options{IdleTimeout: 0})
		t.Cleanup(controller.Close)

		_, err := controller.Snapshot(context.Background())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return !controller.State().Synced
		}, 2*time.Second, 5*time.Millisecond)
	})
}

func TestControllerCommands(t *testing.T) {
	t.Run("toggle in cart updates the stored item", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1", Price: price(4.5)})
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates := controller.Watch(ctx)
		state := nextSynced(t, updates, anyState)

		controller.ToggleInCart(state.Items[0], true)

		state = nextSynced(t, updates, func(state State) bool { return state.Items[0].InCart })
		require.Equal(t, "R$ 4,50", state.TotalInCart)
	})

	t.Run("delete emits item deleted and undo restores the same id", func(t *testing.T) {
		repository, _ := newFakeRepository(t,
			items.Item{Name: "Milk", Quantity: "1", Price: price(4.5), InCart: true},
			items.Item{Name: "Bread", Quantity: "2"},
		)
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		subscription := controller.Events().Attach()
		defer subscription.Detach()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates := controller.Watch(ctx)
		state := nextSynced(t, updates, anyState)
		milk := state.Items[1]
		require.Equal(t, "Milk", milk.Name)

		controller.Delete(milk)

		event := nextEvent(t, subscription.C)
		deleted, ok := event.(ItemDeleted)
		require.True(t, ok)
		require.Equal(t, milk, deleted.Item)
		nextSynced(t, updates, func(state State) bool { return len(state.Items) == 1 })

		controller.UndoDelete(deleted.Item)

		state = nextSynced(t, updates, func(state State) bool { return len(state.Items) == 2 })
		require.Equal(t, milk, state.Items[1])
		require.Equal(t, "R$ 4,50", state.TotalInCart)
	})

	t.Run("failed command emits the real cause", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		repository.deleteErr = errors.New("disk full")
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		subscription := controller.Events().Attach()
		defer subscription.Detach()

		controller.Delete(items.Item{ID: 1, Name: "Milk", Quantity: "1"})

		event := nextEvent(t, subscription.C)
		failed, ok := event.(CommandFailed)
		require.True(t, ok)
		require.Equal(t, OpDelete, failed.Op)
		require.EqualError(t, failed.Err, "disk full")
	})

	t.Run("stale delete reports not found", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		subscription := controller.Events().Attach()
		defer subscription.Detach()

		controller.Delete(items.Item{ID: 1, Name: "Milk", Quantity: "2"})

		failed, ok := nextEvent(t, subscription.C).(CommandFailed)
		require.True(t, ok)
		require.ErrorIs(t, failed.Err, items.ErrorNotFound)
	})

	t.Run("events without consumer are dropped by default", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{})
		t.Cleanup(controller.Close)

		controller.Delete(items.Item{ID: 1, Name: "Milk", Quantity: "1"})
		controller.Wait()

		subscription := controller.Events().Attach()
		defer subscription.Detach()

		select {
		case event := <-subscription.C:
			t.Fatalf("unexpected replayed event %#v", event)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("queue policy delivers events to the next consumer", func(t *testing.T) {
		repository, _ := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{EventsPolicy: notify.QueueUntilAttached})
		t.Cleanup(controller.Close)

		controller.Delete(items.Item{ID: 1, Name: "Milk", Quantity: "1"})
		controller.Wait()

		subscription := controller.Events().Attach()
		defer subscription.Detach()

		_, ok := nextEvent(t, subscription.C).(ItemDeleted)
		require.True(t, ok)
	})

	t.Run("commands after close are ignored", func(t *testing.T) {
		repository, memory := newFakeRepository(t, items.Item{Name: "Milk", Quantity: "1"})
		controller := NewController(repository, Options{})
		controller.Close()

		controller.Delete(items.Item{ID: 1, Name: "Milk", Quantity: "1"})
		controller.Wait()

		records, err := memory.All(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
	})
}
