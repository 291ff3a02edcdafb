package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/sha3"
)

// LocalStore escribe documentos en disco para entornos sin almacenamiento
// durable. Los archivos se nombran por su hash SHA3-256, así que escribir el
// mismo contenido dos veces es idempotente.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Dir devuelve el directorio servido como /metadata.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Write guarda body y devuelve una URI resoluble localmente.
func (s *LocalStore) Write(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create fallback dir: %w", err)
	}
	sum := sha3.Sum256(body)
	name := hex.EncodeToString(sum[:]) + ".json"
	if err := os.WriteFile(filepath.Join(s.dir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("write fallback file: %w", err)
	}
	return s.baseURL + "/" + name, nil
}
