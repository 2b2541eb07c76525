package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/record"
)

// LocalSource reads event captures from a local directory.
type LocalSource struct {
	basePath string
	decoder  *Decoder
}

// NewLocalSource creates a source over a capture directory.
func NewLocalSource(basePath string) (*LocalSource, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid capture path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("capture path %s is not a directory", basePath)
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &LocalSource{basePath: basePath, decoder: decoder}, nil
}

// Stream implements HitSource.
func (s *LocalSource) Stream(ctx context.Context) (<-chan *record.EventBundle, <-chan error) {
	bundleCh := make(chan *record.EventBundle, 64)
	errCh := make(chan error, 1)

	logger := logging.Component("source.local")

	go func() {
		defer close(bundleCh)
		defer close(errCh)

		index, err := s.buildIndex()
		if err != nil {
			errCh <- fmt.Errorf("index captures: %w", err)
			return
		}
		logger.Info("indexed capture files",
			"count", index.Count(),
			"path", s.basePath)
		if index.Count() == 0 {
			errCh <- fmt.Errorf("no capture files found in %s", s.basePath)
			return
		}

		for _, file := range index.Files() {
			data, err := os.ReadFile(file.Path)
			if err != nil {
				errCh <- fmt.Errorf("read capture %s: %w", file.Path, err)
				return
			}
			bundle, err := s.decoder.Decode(data, file.Compressed)
			if err != nil {
				errCh <- fmt.Errorf("decode capture %s: %w", file.Path, err)
				return
			}
			select {
			case bundleCh <- bundle:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return bundleCh, errCh
}

func (s *LocalSource) buildIndex() (*CaptureIndex, error) {
	index := NewCaptureIndex()
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		index.Add(path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	index.Sort()
	return index, nil
}

// Close releases decoder resources.
func (s *LocalSource) Close() error {
	s.decoder.Close()
	return nil
}
