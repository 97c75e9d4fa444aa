package items

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Lelo88/shopping-list-golang/internal/store"
)

// Errores de dominio (no HTTP). El handler los traduce a status codes.
var (
	ErrorInvalidInput = errors.New("invalid input")
	ErrorNotFound     = errors.New("item not found")
)

// RecordStore es lo que el repositorio necesita del store.
// Lo implementan store.Postgres y store.Memory.
type RecordStore interface {
	GetByID(ctx context.Context, id int64) (store.Record, bool, error)
	All(ctx context.Context) ([]store.Record, error)
	Insert(ctx context.Context, record store.Record) (int64, error)
	Update(ctx context.Context, record store.Record) (bool, error)
	Delete(ctx context.Context, record store.Record) (bool, error)
	Subscribe() (<-chan struct{}, func())
}

// Repository es el único consumidor del store.
// Expone objetos de dominio y no agrega cache, batching ni transacciones.
type Repository struct {
	store  RecordStore
	logger *zap.Logger
}

// NewRepository crea un repositorio de items.
func NewRepository(recordStore RecordStore, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: recordStore, logger: logger}
}

// GetAll devuelve un stream con la lista completa ordenada por nombre.
// Emite el estado actual y vuelve a emitir después de cada cambio en el store,
// hasta que ctx termina (entonces el canal se cierra).
// Un error en el primer scan se devuelve directamente; los siguientes se loguean
// y el stream espera al próximo cambio.
func (repository *Repository) GetAll(ctx context.Context) (<-chan []Item, error) {
	// Nos suscribimos antes del primer scan para no perder cambios intermedios.
	changes, unsubscribe := repository.store.Subscribe()

	records, err := repository.store.All(ctx)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("load shopping items: %w", err)
	}

	out := make(chan []Item, 1)
	out <- FromRecords(records)

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
			}

			records, err := repository.store.All(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				repository.logger.Error("reload shopping items", zap.Error(err))
				continue
			}

			select {
			case out <- FromRecords(records):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// GetByID busca un item por id. Un id inexistente devuelve found=false, no error.
func (repository *Repository) GetByID(ctx context.Context, id int64) (Item, bool, error) {
	record, found, err := repository.store.GetByID(ctx, id)
	if err != nil {
		return Item{}, false, err
	}
	if !found {
		return Item{}, false, nil
	}
	return FromRecord(record), true, nil
}

// Insert inserta (o reemplaza, si el id ya existe) y devuelve el item con su id definitivo.
// Un item sin nombre o cantidad, o con precio negativo, devuelve ErrorInvalidInput sin tocar el store.
func (repository *Repository) Insert(ctx context.Context, item Item) (Item, error) {
	if err := validate(item); err != nil {
		return Item{}, err
	}
	id, err := repository.store.Insert(ctx, ToRecord(item))
	if err != nil {
		return Item{}, err
	}
	item.ID = id
	return item, nil
}

// Update reemplaza el item completo por id.
func (repository *Repository) Update(ctx context.Context, item Item) error {
	if err := validate(item); err != nil {
		return err
	}
	updated, err := repository.store.Update(ctx, ToRecord(item))
	if err != nil {
		return err
	}
	if !updated {
		return ErrorNotFound
	}
	return nil
}

// Delete borra el item si sigue coincidiendo con lo guardado.
func (repository *Repository) Delete(ctx context.Context, item Item) error {
	deleted, err := repository.store.Delete(ctx, ToRecord(item))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrorNotFound
	}
	return nil
}

func validate(item Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrorInvalidInput)
	}
	if strings.TrimSpace(item.Quantity) == "" {
		return fmt.Errorf("%w: quantity is required", ErrorInvalidInput)
	}
	if item.Price != nil && (*item.Price < 0 || math.IsNaN(*item.Price) || math.IsInf(*item.Price, 0)) {
		return fmt.Errorf("%w: price must be a non-negative number", ErrorInvalidInput)
	}
	return nil
}
