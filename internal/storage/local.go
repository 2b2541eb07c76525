package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beamlinehq/hitwriter/internal/util"
)

// LocalStore publishes run artifacts to a local directory tree.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a local store rooted at baseDir.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := util.EnsureDir(baseDir); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir, prefix: prefix}, nil
}

// WriteArtifact writes one artifact atomically via temp file and rename.
func (s *LocalStore) WriteArtifact(ctx context.Context, ref RunRef, name string, data []byte) error {
	path := filepath.Join(s.baseDir, ref.ArtifactPath(s.prefix, name))
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// WriteManifest writes the manifest atomically.
func (s *LocalStore) WriteManifest(ctx context.Context, ref RunRef, manifest *Manifest) error {
	data, err := manifest.Encode()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(s.baseDir, ref.ManifestPath(s.prefix))
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// Exists reports whether the run's manifest is present.
func (s *LocalStore) Exists(ctx context.Context, ref RunRef) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns a file:// URI for a storage key.
func (s *LocalStore) URI(key string) string {
	return "file://" + filepath.Join(s.baseDir, key)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
