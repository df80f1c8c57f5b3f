package inventory

import "errors"

var (
	ErrNotFound = errors.New("recurso no encontrado")
	ErrConflict = errors.New("conflicto de estado")
)

// ValidationError — rechazo determinista de una regla de negocio, con el
// campo ofensor para que el frontend lo resalte. Nunca se reintenta.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
