// Package store persiste los registros de la lista de compras.
// Ofrece dos implementaciones con el mismo contrato: PostgreSQL (pgx) y memoria.
package store

import "sort"

// Record representa una fila de la tabla shopping_items.
// Price es nil cuando el item todavía no tiene precio.
type Record struct {
	ID       int64
	Name     string
	Quantity string
	Price    *float64
	InCart   bool
}

// sameContent compara todos los campos, incluido el precio por valor.
func (record Record) sameContent(other Record) bool {
	if record.ID != other.ID || record.Name != other.Name || record.Quantity != other.Quantity || record.InCart != other.InCart {
		return false
	}
	if record.Price == nil || other.Price == nil {
		return record.Price == nil && other.Price == nil
	}
	return *record.Price == *other.Price
}

// clone evita que quien recibe el registro comparta el puntero de precio con el store.
func (record Record) clone() Record {
	if record.Price != nil {
		price := *record.Price
		record.Price = &price
	}
	return record
}

// sortByName ordena igual que el scan de Postgres: name ASC, id ASC.
func sortByName(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].ID < records[j].ID
	})
}
