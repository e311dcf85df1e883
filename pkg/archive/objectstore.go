// Package archive exports a module's manifest history as a hashed
// bundle and pushes it to content-addressed object storage. Backends:
// local filesystem, S3, and GCS (behind the gcp build tag).
package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
)

// ObjectStore is content-addressed blob storage. Keys are the
// "sha256:"-prefixed hash of the content.
type ObjectStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// rawHash strips the sha256: prefix and checks the remainder is hex.
func rawHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, "sha256:")
	if !ok {
		return "", fmt.Errorf("archive: malformed hash %q", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("archive: malformed hash %q: %w", hash, err)
	}
	return raw, nil
}

// FileStore keeps bundles under a local directory, one .blob file per
// hash. Writes go through a temp file and rename.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: ensure dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := canonical.HashBytes(data)
	raw := strings.TrimPrefix(hash, "sha256:")
	path := filepath.Join(s.baseDir, raw+".blob")
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("archive: commit blob: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHash(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("archive: bundle %s not found", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open blob: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHash(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("archive: stat blob: %w", err)
}

func (s *FileStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := rawHash(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, raw+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: delete blob: %w", err)
	}
	return nil
}
