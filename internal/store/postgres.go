package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// queryTimeout limita cada operación individual contra la DB.
const queryTimeout = 5 * time.Second

// DBTX es el subconjunto de *pgxpool.Pool que usa el store.
// Permite testear el SQL con fakes sin levantar Postgres.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres accede a la tabla shopping_items.
// Contiene SQL y mapeo fila → Record. Las escrituras se serializan con un mutex propio.
type Postgres struct {
	database DBTX
	logger   *zap.Logger
	writeMu  sync.Mutex
	feed     *changeFeed

	// listenRetry es la primera espera antes de reconectar el LISTEN.
	listenRetry time.Duration
}

// NewPostgres crea el store sobre un pool ya conectado.
func NewPostgres(database DBTX, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		database: database,
		logger:   logger,
		feed:     newChangeFeed(),

		listenRetry: listenRetryInitial,
	}
}

const selectColumns = `id, name, quantity, price, is_in_cart`

// GetByID busca un registro por id. pgx.ErrNoRows se traduce a found=false.
func (postgres *Postgres) GetByID(ctx context.Context, id int64) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `SELECT ` + selectColumns + ` FROM shopping_items WHERE id = $1`

	var record Record
	err := postgres.database.QueryRow(ctx, query, id).
		Scan(&record.ID, &record.Name, &record.Quantity, &record.Price, &record.InCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("select shopping item %d: %w", id, err)
	}
	return record, true, nil
}

// All devuelve la tabla completa ordenada por nombre (desempata por id).
func (postgres *Postgres) All(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `SELECT ` + selectColumns + ` FROM shopping_items ORDER BY name ASC, id ASC`

	rows, err := postgres.database.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select shopping items: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Name, &record.Quantity, &record.Price, &record.InCart); err != nil {
			return nil, fmt.Errorf("scan shopping item: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shopping items: %w", err)
	}

	return records, nil
}

// Insert inserta o reemplaza por id y devuelve el id efectivo.
// Con ID 0 la DB genera el id (RETURNING). Con un id explícito se hace upsert
// y se adelanta la secuencia para que un id restaurado no choque con los próximos.
func (postgres *Postgres) Insert(ctx context.Context, record Record) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	postgres.writeMu.Lock()
	defer postgres.writeMu.Unlock()

	var id int64
	if record.ID == 0 {
		const query = `
			INSERT INTO shopping_items (name, quantity, price, is_in_cart)
			VALUES ($1, $2, $3, $4)
			RETURNING id;
		`
		if err := postgres.database.QueryRow(ctx, query, record.Name, record.Quantity, record.Price, record.InCart).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert shopping item: %w", err)
		}
	} else {
		const query = `
			INSERT INTO shopping_items (id, name, quantity, price, is_in_cart)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    quantity = EXCLUDED.quantity,
			    price = EXCLUDED.price,
			    is_in_cart = EXCLUDED.is_in_cart
			RETURNING id;
		`
		if err := postgres.database.QueryRow(ctx, query, record.ID, record.Name, record.Quantity, record.Price, record.InCart).Scan(&id); err != nil {
			return 0, fmt.Errorf("upsert shopping item %d: %w", record.ID, err)
		}

		const syncSequence = `
			SELECT setval(pg_get_serial_sequence('shopping_items', 'id'),
			              GREATEST($1, (SELECT COALESCE(MAX(id), 1) FROM shopping_items)));
		`
		if _, err := postgres.database.Exec(ctx, syncSequence, id); err != nil {
			return 0, fmt.Errorf("sync shopping item sequence: %w", err)
		}
	}

	postgres.feed.publish()
	return id, nil
}

// Update reemplaza la fila completa por id. Si el id no existe devuelve false sin error.
func (postgres *Postgres) Update(ctx context.Context, record Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	postgres.writeMu.Lock()
	defer postgres.writeMu.Unlock()

	const query = `
		UPDATE shopping_items
		SET name = $2, quantity = $3, price = $4, is_in_cart = $5
		WHERE id = $1;
	`
	tag, err := postgres.database.Exec(ctx, query, record.ID, record.Name, record.Quantity, record.Price, record.InCart)
	if err != nil {
		return false, fmt.Errorf("update shopping item %d: %w", record.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	postgres.feed.publish()
	return true, nil
}

// Delete borra la fila solo si coincide en todas las columnas.
// price usa IS NOT DISTINCT FROM para que NULL coincida con NULL.
func (postgres *Postgres) Delete(ctx context.Context, record Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	postgres.writeMu.Lock()
	defer postgres.writeMu.Unlock()

	const query = `
		DELETE FROM shopping_items
		WHERE id = $1
		  AND name = $2
		  AND quantity = $3
		  AND price IS NOT DISTINCT FROM $4
		  AND is_in_cart = $5;
	`
	tag, err := postgres.database.Exec(ctx, query, record.ID, record.Name, record.Quantity, record.Price, record.InCart)
	if err != nil {
		return false, fmt.Errorf("delete shopping item %d: %w", record.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	postgres.feed.publish()
	return true, nil
}

// Subscribe registra un suscriptor de cambios. La función devuelta lo da de baja.
func (postgres *Postgres) Subscribe() (<-chan struct{}, func()) {
	return postgres.feed.subscribe()
}

// Ping chequea que la DB responda.
func (postgres *Postgres) Ping(ctx context.Context) error {
	return postgres.database.Ping(ctx)
}
