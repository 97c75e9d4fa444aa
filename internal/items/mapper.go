package items

import "github.com/Lelo88/shopping-list-golang/internal/store"

// ToRecord convierte el item de dominio a la forma persistida.
// Los campos son idénticos; solo se copia el precio para no compartir el puntero.
func ToRecord(item Item) store.Record {
	return store.Record{
		ID:       item.ID,
		Name:     item.Name,
		Quantity: item.Quantity,
		Price:    copyPrice(item.Price),
		InCart:   item.InCart,
	}
}

// FromRecord convierte un registro del store al modelo de dominio.
func FromRecord(record store.Record) Item {
	return Item{
		ID:       record.ID,
		Name:     record.Name,
		Quantity: record.Quantity,
		Price:    copyPrice(record.Price),
		InCart:   record.InCart,
	}
}

// FromRecords mapea un scan completo manteniendo el orden.
func FromRecords(records []store.Record) []Item {
	out := make([]Item, len(records))
	for i, record := range records {
		out[i] = FromRecord(record)
	}
	return out
}

func copyPrice(price *float64) *float64 {
	if price == nil {
		return nil
	}
	value := *price
	return &value
}
