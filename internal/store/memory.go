package store

import (
	"context"
	"sync"
)

// Memory guarda los registros en un mapa protegido por mutex.
// Sirve para correr la app sin base de datos (STORE_DRIVER=memory) y para tests.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]Record
	lastID  int64
	feed    *changeFeed
}

// NewMemory crea un store en memoria vacío.
func NewMemory() *Memory {
	return &Memory{
		records: map[int64]Record{},
		feed:    newChangeFeed(),
	}
}

// GetByID busca un registro por id. Un id inexistente devuelve found=false, no error.
func (memory *Memory) GetByID(ctx context.Context, id int64) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	memory.mu.RLock()
	defer memory.mu.RUnlock()

	record, ok := memory.records[id]
	if !ok {
		return Record{}, false, nil
	}
	return record.clone(), true, nil
}

// All devuelve todos los registros ordenados por nombre.
func (memory *Memory) All(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	memory.mu.RLock()
	out := make([]Record, 0, len(memory.records))
	for _, record := range memory.records {
		out = append(out, record.clone())
	}
	memory.mu.RUnlock()

	sortByName(out)
	return out, nil
}

// Insert inserta o reemplaza por id. Con ID 0 el store asigna uno nuevo.
func (memory *Memory) Insert(ctx context.Context, record Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	memory.mu.Lock()
	if record.ID == 0 {
		memory.lastID++
		record.ID = memory.lastID
	} else if record.ID > memory.lastID {
		memory.lastID = record.ID
	}
	memory.records[record.ID] = record.clone()
	memory.mu.Unlock()

	memory.feed.publish()
	return record.ID, nil
}

// Update reemplaza el registro con el mismo id. Si no existe no hace nada y devuelve false.
func (memory *Memory) Update(ctx context.Context, record Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	memory.mu.Lock()
	if _, ok := memory.records[record.ID]; !ok {
		memory.mu.Unlock()
		return false, nil
	}
	memory.records[record.ID] = record.clone()
	memory.mu.Unlock()

	memory.feed.publish()
	return true, nil
}

// Delete borra el registro solo si coincide campo por campo con el guardado.
func (memory *Memory) Delete(ctx context.Context, record Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	memory.mu.Lock()
	stored, ok := memory.records[record.ID]
	if !ok || !stored.sameContent(record) {
		memory.mu.Unlock()
		return false, nil
	}
	delete(memory.records, record.ID)
	memory.mu.Unlock()

	memory.feed.publish()
	return true, nil
}

// Subscribe registra un suscriptor de cambios. La función devuelta lo da de baja.
func (memory *Memory) Subscribe() (<-chan struct{}, func()) {
	return memory.feed.subscribe()
}

// Ping siempre responde OK: no hay nada externo que chequear.
func (memory *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
