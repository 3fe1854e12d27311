package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore escribe adjuntos en un directorio servido como estático.
type LocalStore struct {
	dir       string
	urlPrefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageNotConfigured
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}, nil
}

func (s *LocalStore) Store(ctx context.Context, data []byte, originalName, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uniqueName(originalName)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

// Dir expone el directorio para montarlo como estático.
func (s *LocalStore) Dir() string { return s.dir }

// URLPrefix expone la ruta pública bajo la que se sirven los archivos.
func (s *LocalStore) URLPrefix() string { return s.urlPrefix }
