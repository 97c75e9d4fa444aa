package listing

import "github.com/Lelo88/shopping-list-golang/internal/items"

// Event es una notificación de una sola vez emitida por el controller de la lista.
type Event interface {
	// Kind identifica el evento (se usa como nombre de evento SSE).
	Kind() string
}

// ItemDeleted avisa que el item se borró y se puede ofrecer deshacer.
// Lleva el valor completo para poder reinsertarlo.
type ItemDeleted struct {
	Item items.Item `json:"item"`
}

func (ItemDeleted) Kind() string { return "item_deleted" }

// CommandFailed informa la causa real de un comando que no pudo completarse.
type CommandFailed struct {
	Op   string     `json:"op"`
	Item items.Item `json:"item"`
	Err  error      `json:"-"`
}

func (CommandFailed) Kind() string { return "command_failed" }

// Operaciones reportadas en CommandFailed.Op.
const (
	OpToggleInCart = "toggle_in_cart"
	OpDelete       = "delete"
	OpUndoDelete   = "undo_delete"
)
