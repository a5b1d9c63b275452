package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists generated artifacts and returns the path clients use to
// reach them.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// FileStore writes artifacts under a local directory, for single-node
// deployments and development.
type FileStore struct {
	baseDir    string
	publicBase string
}

// NewFileStore roots a store at baseDir; publicBase is the URL prefix
// returned to clients (for example /generated-assets).
func NewFileStore(baseDir, publicBase string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (s *FileStore) Write(_ context.Context, key string, data []byte) (string, error) {
	key = sanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}

// sanitizeKey normalizes a storage key to forward slashes and strips any
// traversal segments so a key can never escape the base directory.
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	parts := strings.Split(key, "/")
	clean := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, "/")
}
