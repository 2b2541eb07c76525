// Package session owns the run output files. A RunFileSession moves through
// Uninitialized, Open and Closed states; all appends are serialized so the
// session behaves as a monitor for its writers.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/beamlinehq/hitwriter/internal/record"
	"github.com/beamlinehq/hitwriter/internal/util"
)

var (
	// ErrSessionNotOpen is returned when an append or close arrives before
	// Open has succeeded.
	ErrSessionNotOpen = errors.New("session not open")

	// ErrSessionClosed is returned when an append arrives after Close.
	ErrSessionClosed = errors.New("session already closed")

	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("session already open")

	// ErrSessionFailed is returned when an append arrives after an earlier
	// append failed; the session only aborts from that point.
	ErrSessionFailed = errors.New("session failed")
)

// Run header metadata keys stored in the hits file footer.
const (
	MetaRunNumber     = "run_number"
	MetaDetectorName  = "detector_name"
	MetaSchemaVersion = "schema_version"
	MetaCreatedAt     = "created_at"
)

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateFailed
	stateClosed
)

type truthWriters struct {
	clusters    *tableWriter[record.ClusterRow]
	rawClusters *tableWriter[record.RawClusterRow]
	simHits     *tableWriter[record.SimHitRow]
	tracks      *tableWriter[record.TrackRow]
}

// RunFileSession writes one run's event stream. Open once, append per event,
// close once. Safe for concurrent Append calls.
type RunFileSession struct {
	mu     sync.Mutex
	st     state
	logger *slog.Logger

	withTruth bool

	path          string
	runNumber     uint32
	detectorName  string
	eventsWritten uint64

	hits  *tableWriter[record.HitRow]
	truth *truthWriters
}

// New returns an uninitialized session. When withTruth is set, Open also
// creates the four truth sibling files next to the hits file.
func New(withTruth bool, logger *slog.Logger) *RunFileSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunFileSession{withTruth: withTruth, logger: logger}
}

// Open creates the output files and records the run header. It may be called
// exactly once.
func (s *RunFileSession) Open(path string, runNumber uint32, detectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.st {
	case stateOpen:
		return ErrAlreadyOpen
	case stateFailed:
		return ErrSessionFailed
	case stateClosed:
		return ErrSessionClosed
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	header := []parquet.WriterOption{
		parquet.KeyValueMetadata(MetaRunNumber, strconv.FormatUint(uint64(runNumber), 10)),
		parquet.KeyValueMetadata(MetaDetectorName, detectorName),
		parquet.KeyValueMetadata(MetaSchemaVersion, record.SchemaVersion),
		parquet.KeyValueMetadata(MetaCreatedAt, time.Now().UTC().Format(time.RFC3339)),
		parquet.Compression(&parquet.Zstd),
	}

	hits, err := newTableWriter[record.HitRow](path, header)
	if err != nil {
		return fmt.Errorf("open hits file: %w", err)
	}
	s.hits = hits

	if s.withTruth {
		tw, err := openTruthWriters(path, header)
		if err != nil {
			hits.abort()
			return err
		}
		s.truth = tw
	}

	s.path = path
	s.runNumber = runNumber
	s.detectorName = detectorName
	s.st = stateOpen

	s.logger.Info("run file opened",
		slog.String("path", path),
		slog.Uint64("run_number", uint64(runNumber)),
		slog.String("detector_name", detectorName),
		slog.Bool("with_truth", s.withTruth))
	return nil
}

func openTruthWriters(base string, header []parquet.WriterOption) (*truthWriters, error) {
	tw := &truthWriters{}
	var err error
	if tw.clusters, err = newTableWriter[record.ClusterRow](TruthPath(base, record.ClusterRow{}.TableName()), header); err != nil {
		return nil, fmt.Errorf("open truth clusters file: %w", err)
	}
	if tw.rawClusters, err = newTableWriter[record.RawClusterRow](TruthPath(base, record.RawClusterRow{}.TableName()), header); err != nil {
		tw.abort()
		return nil, fmt.Errorf("open truth raw clusters file: %w", err)
	}
	if tw.simHits, err = newTableWriter[record.SimHitRow](TruthPath(base, record.SimHitRow{}.TableName()), header); err != nil {
		tw.abort()
		return nil, fmt.Errorf("open truth sim hits file: %w", err)
	}
	if tw.tracks, err = newTableWriter[record.TrackRow](TruthPath(base, record.TrackRow{}.TableName()), header); err != nil {
		tw.abort()
		return nil, fmt.Errorf("open truth tracks file: %w", err)
	}
	return tw, nil
}

// Append commits one event record. Rows are staged into every table before
// any row group is flushed, and the first failure moves the session into the
// failed state: Close then aborts the files instead of finalizing them, so a
// failed append never leaves a partial event visible.
func (s *RunFileSession) Append(rec *record.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.st {
	case stateUninitialized:
		return ErrSessionNotOpen
	case stateFailed:
		return ErrSessionFailed
	case stateClosed:
		return ErrSessionClosed
	}

	if err := s.appendLocked(rec); err != nil {
		s.st = stateFailed
		return err
	}
	s.eventsWritten++
	return nil
}

func (s *RunFileSession) appendLocked(rec *record.EventRecord) error {
	var rows []record.HitRow
	for _, coll := range rec.Collections {
		rows = append(rows, coll.Hits...)
	}
	if err := s.hits.write(rows); err != nil {
		return fmt.Errorf("append event %d: %w", rec.EventNumber, err)
	}

	if s.truth != nil {
		if err := s.truth.clusters.write(rec.Clusters); err != nil {
			return fmt.Errorf("append event %d clusters: %w", rec.EventNumber, err)
		}
		if err := s.truth.rawClusters.write(rec.RawClusters); err != nil {
			return fmt.Errorf("append event %d raw clusters: %w", rec.EventNumber, err)
		}
		if err := s.truth.simHits.write(rec.SimHits); err != nil {
			return fmt.Errorf("append event %d sim hits: %w", rec.EventNumber, err)
		}
		if err := s.truth.tracks.write(rec.Tracks); err != nil {
			return fmt.Errorf("append event %d tracks: %w", rec.EventNumber, err)
		}
	}

	if err := s.hits.flushGroup(); err != nil {
		return fmt.Errorf("flush event %d: %w", rec.EventNumber, err)
	}
	if s.truth != nil {
		if err := s.truth.clusters.flushGroup(); err != nil {
			return fmt.Errorf("flush event %d clusters: %w", rec.EventNumber, err)
		}
		if err := s.truth.rawClusters.flushGroup(); err != nil {
			return fmt.Errorf("flush event %d raw clusters: %w", rec.EventNumber, err)
		}
		if err := s.truth.simHits.flushGroup(); err != nil {
			return fmt.Errorf("flush event %d sim hits: %w", rec.EventNumber, err)
		}
		if err := s.truth.tracks.flushGroup(); err != nil {
			return fmt.Errorf("flush event %d tracks: %w", rec.EventNumber, err)
		}
	}
	return nil
}

// Close flushes and releases the output files and returns the number of
// events written. A second call is a no-op returning the same count.
func (s *RunFileSession) Close() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.st {
	case stateUninitialized:
		return 0, ErrSessionNotOpen
	case stateClosed:
		return s.eventsWritten, nil
	case stateFailed:
		// No footer is written, so no partial event ever becomes readable.
		s.hits.abort()
		if s.truth != nil {
			s.truth.abort()
		}
		s.st = stateClosed
		s.logger.Warn("run file aborted after failed append",
			slog.String("path", s.path),
			slog.Uint64("events_written", s.eventsWritten))
		return s.eventsWritten, nil
	}

	var errs []error
	if err := s.hits.close(); err != nil {
		errs = append(errs, fmt.Errorf("close hits file: %w", err))
	}
	if s.truth != nil {
		for name, w := range map[string]interface{ close() error }{
			"clusters":     s.truth.clusters,
			"raw clusters": s.truth.rawClusters,
			"sim hits":     s.truth.simHits,
			"tracks":       s.truth.tracks,
		} {
			if err := w.close(); err != nil {
				errs = append(errs, fmt.Errorf("close truth %s file: %w", name, err))
			}
		}
	}

	s.st = stateClosed
	s.logger.Info("run file closed",
		slog.String("path", s.path),
		slog.Uint64("events_written", s.eventsWritten))
	return s.eventsWritten, errors.Join(errs...)
}

// EventsWritten returns the current event count.
func (s *RunFileSession) EventsWritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsWritten
}

// Path returns the hits file path. Empty before Open.
func (s *RunFileSession) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Files lists every file the session writes, hits first.
func (s *RunFileSession) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	files := []string{s.path}
	if s.withTruth {
		for _, table := range []string{
			record.ClusterRow{}.TableName(),
			record.RawClusterRow{}.TableName(),
			record.SimHitRow{}.TableName(),
			record.TrackRow{}.TableName(),
		} {
			files = append(files, TruthPath(s.path, table))
		}
	}
	return files
}

// TruthPath derives a truth table's file path from the hits file path:
// "run.hits.parquet" becomes "run.<table>.parquet".
func TruthPath(base, table string) string {
	name := strings.TrimSuffix(base, ".parquet")
	name = strings.TrimSuffix(name, ".hits")
	return name + "." + table + ".parquet"
}

// tableWriter couples one parquet writer with its backing file. Rows are
// staged with write and become durable as one row group on flushGroup.
type tableWriter[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
}

func newTableWriter[T any](path string, opts []parquet.WriterOption) (*tableWriter[T], error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &tableWriter[T]{
		file:   file,
		writer: parquet.NewGenericWriter[T](file, opts...),
	}, nil
}

func (w *tableWriter[T]) write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := w.writer.Write(rows)
	return err
}

func (w *tableWriter[T]) flushGroup() error {
	return w.writer.Flush()
}

func (w *tableWriter[T]) close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// abort closes the backing file without finalizing the parquet footer, used
// when opening a sibling file fails partway.
func (w *tableWriter[T]) abort() {
	if w != nil && w.file != nil {
		w.file.Close()
		os.Remove(w.file.Name())
	}
}

func (tw *truthWriters) abort() {
	tw.clusters.abort()
	tw.rawClusters.abort()
	tw.simHits.abort()
	tw.tracks.abort()
}
