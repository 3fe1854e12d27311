package repository

import "errors"

var (
	// ErrPersistence envuelve cualquier falla del almacenamiento subyacente.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound se devuelve cuando la fila pedida no existe.
	ErrNotFound = errors.New("not found")
	// ErrEmptyMessage protege el invariante contenido/adjunto.
	ErrEmptyMessage = errors.New("message has neither content nor attachment")
)
