package items

// Ids reservados.
const (
	// UnsavedID identifica un item que todavía no se insertó; el store asigna el id real.
	UnsavedID int64 = 0
	// CreateFlowID indica "no hay nada que cargar": la pantalla de edición está creando un item nuevo.
	CreateFlowID int64 = -1
)

// Item es el modelo de dominio de la lista de compras.
// No conoce nada de la persistencia: el mapper lo convierte desde/hacia store.Record.
// Price es nil cuando todavía no se conoce el precio (no es lo mismo que 0).
type Item struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Quantity string   `json:"quantity"`
	Price    *float64 `json:"price"`
	InCart   bool     `json:"in_cart"`
}

// WithInCart devuelve una copia del item con el flag de carrito reemplazado.
func (item Item) WithInCart(inCart bool) Item {
	item.InCart = inCart
	return item
}
