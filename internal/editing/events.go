package editing

import "github.com/Lelo88/shopping-list-golang/internal/items"

// Mensajes de validación por campo.
const (
	MessageNameRequired     = "name is required"
	MessageQuantityRequired = "quantity is required"
	MessageInvalidPrice     = "price must be a non-negative number"
)

// Event es una notificación de una sola vez del controller de edición.
type Event interface {
	Kind() string
}

// ValidationFailure lleva como máximo un error de campo.
// Con todos los campos vacíos significa "sin errores" y se emite antes de escribir.
type ValidationFailure struct {
	NameError     string `json:"name_error,omitempty"`
	QuantityError string `json:"quantity_error,omitempty"`
	PriceError    string `json:"price_error,omitempty"`
}

func (ValidationFailure) Kind() string { return "validation_failure" }

// Cleared indica que no hay errores de campo.
func (failure ValidationFailure) Cleared() bool {
	return failure.NameError == "" && failure.QuantityError == "" && failure.PriceError == ""
}

func (failure ValidationFailure) fields() map[string]string {
	fields := map[string]string{}
	if failure.NameError != "" {
		fields["name"] = failure.NameError
	}
	if failure.QuantityError != "" {
		fields["quantity"] = failure.QuantityError
	}
	if failure.PriceError != "" {
		fields["price"] = failure.PriceError
	}
	return fields
}

// SaveSuccess se emite cuando el item quedó guardado. Item trae el id definitivo.
type SaveSuccess struct {
	Item items.Item `json:"item"`
}

func (SaveSuccess) Kind() string { return "save_success" }

// SaveFailure lleva la causa real de una escritura fallida. No es un error de validación.
type SaveFailure struct {
	Err error `json:"-"`
}

func (SaveFailure) Kind() string { return "save_failure" }
