// Package watch streams event captures from a live spool directory. Captures
// arrive while the run is in progress; the spool source delivers them in
// event-number order and finishes when the completion marker appears.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/record"
	"github.com/beamlinehq/hitwriter/internal/source"
)

// CompleteMarker is the file the producer drops into the spool directory
// when the run has finished.
const CompleteMarker = "run.complete"

// settleDelay gives the producer time to finish writing a capture after the
// create event fires.
const settleDelay = 100 * time.Millisecond

// SpoolSource is a HitSource over a directory that is still being written.
type SpoolSource struct {
	dir     string
	watcher *fsnotify.Watcher
	decoder *source.Decoder
}

// NewSpoolSource opens the spool directory and starts watching it.
func NewSpoolSource(dir string) (*SpoolSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid spool path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool path %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch spool %s: %w", dir, err)
	}

	decoder, err := source.NewDecoder()
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &SpoolSource{dir: dir, watcher: watcher, decoder: decoder}, nil
}

// Stream implements source.HitSource. Captures are emitted strictly in
// event-number order starting from zero; out-of-order arrivals are held back
// until their turn.
func (s *SpoolSource) Stream(ctx context.Context) (<-chan *record.EventBundle, <-chan error) {
	bundleCh := make(chan *record.EventBundle, 64)
	errCh := make(chan error, 1)

	logger := logging.Component("source.spool")

	go func() {
		defer close(bundleCh)
		defer close(errCh)

		pending := source.NewCaptureIndex()
		var next uint64
		complete := false

		// Seed with whatever is already in the spool.
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			errCh <- fmt.Errorf("read spool: %w", err)
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if entry.Name() == CompleteMarker {
				complete = true
				continue
			}
			pending.Add(filepath.Join(s.dir, entry.Name()))
		}
		logger.Info("spool opened",
			"path", s.dir,
			"pending", pending.Count(),
			"complete", complete)

		emit := func() error {
			for {
				file, ok := pending.Lookup(next)
				if !ok {
					return nil
				}
				bundle, err := s.readCapture(file)
				if err != nil {
					return err
				}
				select {
				case bundleCh <- bundle:
				case <-ctx.Done():
					return ctx.Err()
				}
				next++
			}
		}

		if err := emit(); err != nil {
			errCh <- err
			return
		}
		if complete {
			return
		}

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return

			case event, ok := <-s.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if filepath.Base(event.Name) == CompleteMarker {
					// Drain anything that raced with the marker.
					if err := emit(); err != nil {
						errCh <- err
					}
					return
				}
				if pending.Add(event.Name) {
					if err := emit(); err != nil {
						errCh <- err
						return
					}
				}

			case err, ok := <-s.watcher.Errors:
				if !ok {
					return
				}
				errCh <- fmt.Errorf("spool watch: %w", err)
				return
			}
		}
	}()

	return bundleCh, errCh
}

func (s *SpoolSource) readCapture(file source.CaptureFile) (*record.EventBundle, error) {
	// The create event can fire before the producer finishes the write.
	time.Sleep(settleDelay)
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", file.Path, err)
	}
	bundle, err := s.decoder.Decode(data, file.Compressed)
	if err != nil {
		return nil, fmt.Errorf("decode capture %s: %w", file.Path, err)
	}
	return bundle, nil
}

// Close stops watching and releases decoder resources.
func (s *SpoolSource) Close() error {
	s.decoder.Close()
	return s.watcher.Close()
}
