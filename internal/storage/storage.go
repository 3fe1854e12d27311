package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AttachmentStore guarda los bytes de un adjunto y devuelve una referencia
// (URL o ruta) que luego se puede pedir por HTTP.
type AttachmentStore interface {
	Store(ctx context.Context, data []byte, originalName, contentType string) (string, error)
}

var ErrStorageNotConfigured = errors.New("attachment storage not configured")

// uniqueName genera un nombre nuevo conservando la extensión original.
func uniqueName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return uuid.NewString() + ext
}
