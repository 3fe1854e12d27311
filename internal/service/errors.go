package service

import "errors"

// ErrIdentityMissing se devuelve cuando la operación llega sin usuario
// autenticado. Los handlers lo convierten en una respuesta vacía o rechazada.
var ErrIdentityMissing = errors.New("caller identity missing")

// ValidationKind clasifica los rechazos corregibles por el usuario.
type ValidationKind string

const (
	KindEmptyMessage              ValidationKind = "EmptyMessage"
	KindUnsupportedAttachmentType ValidationKind = "UnsupportedAttachmentType"
	KindAttachmentTooLarge        ValidationKind = "AttachmentTooLarge"
	KindInvalidReceiver           ValidationKind = "InvalidReceiver"
	KindRateLimited               ValidationKind = "RateLimited"
)

var (
	ErrEmptyMessage              = errors.New("empty message")
	ErrUnsupportedAttachmentType = errors.New("unsupported attachment type")
	ErrAttachmentTooLarge        = errors.New("attachment too large")
	ErrInvalidReceiver           = errors.New("invalid receiver")
	ErrSendRateLimited           = errors.New("send rate limited")
)

var kindSentinels = map[ValidationKind]error{
	KindEmptyMessage:              ErrEmptyMessage,
	KindUnsupportedAttachmentType: ErrUnsupportedAttachmentType,
	KindAttachmentTooLarge:        ErrAttachmentTooLarge,
	KindInvalidReceiver:           ErrInvalidReceiver,
	KindRateLimited:               ErrSendRateLimited,
}

// ValidationError es un rechazo con motivo legible. errors.Is lo empareja con
// el sentinel de su Kind.
type ValidationError struct {
	Kind   ValidationKind
	Reason string
}

func newValidationError(kind ValidationKind, reason string) *ValidationError {
	return &ValidationError{Kind: kind, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
