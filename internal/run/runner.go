// Package run orchestrates a writing run: events stream in from the capture
// source, become records, and are appended to the run file in order; at
// shutdown the geometry is exported and the artifacts are published.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/beamlinehq/hitwriter/internal/assign"
	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/exporter"
	"github.com/beamlinehq/hitwriter/internal/geometry"
	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/metadata"
	"github.com/beamlinehq/hitwriter/internal/metrics"
	"github.com/beamlinehq/hitwriter/internal/notify"
	"github.com/beamlinehq/hitwriter/internal/record"
	"github.com/beamlinehq/hitwriter/internal/session"
	"github.com/beamlinehq/hitwriter/internal/source"
	"github.com/beamlinehq/hitwriter/internal/storage"
	"github.com/beamlinehq/hitwriter/internal/summary"
)

// Runner owns one run from open to publish.
type Runner struct {
	cfg      config.Config
	registry *geometry.Registry
	src      source.HitSource

	assignment *assign.Assignment
	builder    *record.Builder
	sess       *session.RunFileSession
	exp        *exporter.Exporter
	store      storage.RunStore
	emitter    notify.Emitter
	catalog    metadata.Writer
	summaries  summary.Manager

	log       *slog.Logger
	startedAt time.Time

	// Mutated only by the sequencer (or the single sequential loop).
	hitsWritten    uint64
	hitsByColl     map[string]uint64
	lastEventNum   uint64
	appendedEvents uint64
}

// New wires a runner from configuration. The geometry registry and hit
// source are supplied by the caller; everything downstream is built here.
func New(ctx context.Context, cfg config.Config, registry *geometry.Registry, src source.HitSource) (*Runner, error) {
	log := logging.Component("runner")

	assignment, err := assign.Resolve(cfg.Collections, registry, log)
	if err != nil {
		return nil, fmt.Errorf("resolve collections: %w", err)
	}

	store, err := newStore(ctx, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	catalog, err := metadata.NewWriter(metadata.CatalogConfig{
		PostgresDSN: cfg.Catalog.PostgresDSN,
		Namespace:   cfg.Catalog.Namespace,
	})
	if err != nil {
		log.Warn("run catalog unavailable, continuing without it", "error", err)
		catalog, _ = metadata.NewWriter(metadata.CatalogConfig{})
	}

	summaries, err := summary.NewManager(summary.Config{
		Enabled: cfg.Summary.Enabled,
		Dir:     cfg.Summary.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("create summary manager: %w", err)
	}

	return &Runner{
		cfg:        cfg,
		registry:   registry,
		src:        src,
		assignment: assignment,
		builder:    record.NewBuilder(cfg.Run.RunNumber, assignment, cfg.Run.DumpMCTruth),
		sess:       session.New(cfg.Run.DumpMCTruth, logging.Component("session")),
		exp:        exporter.New(logging.Component("exporter")),
		store:      store,
		emitter:    notify.NewEmitter(cfg.Notify),
		catalog:    catalog,
		summaries:  summaries,
		log:        log,
		hitsByColl: make(map[string]uint64),
	}, nil
}

func newStore(ctx context.Context, cfg config.OutputConfig) (storage.RunStore, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewLocalStore(cfg.Dir, cfg.Prefix)
	case "gcs":
		return storage.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		return storage.NewS3Store(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Run executes the whole run and blocks until it finishes or fails.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = time.Now().UTC()
	correlationID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.RunLogger(correlationID, r.cfg.Run.DetectorName, r.cfg.Run.RunNumber)

	outputPath := filepath.Join(r.cfg.Output.Dir, r.cfg.Output.FileName)
	if err := r.sess.Open(outputPath, r.cfg.Run.RunNumber, r.cfg.Run.DetectorName); err != nil {
		return fmt.Errorf("open run file: %w", err)
	}

	log.Info("run started",
		"output", outputPath,
		"collections", r.assignment.Collections(),
		"workers", r.cfg.Perf.Workers,
		"with_truth", r.cfg.Run.DumpMCTruth)

	var runErr error
	if r.cfg.Perf.Workers > 1 {
		runErr = r.runParallel(ctx, log)
	} else {
		runErr = r.runSequential(ctx, log)
	}
	if runErr != nil {
		// Close to release the handle; completed events stay counted.
		r.sess.Close()
		return runErr
	}

	return r.finalize(ctx, log)
}

// runSequential processes bundles one at a time on the calling goroutine.
func (r *Runner) runSequential(ctx context.Context, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bundleCh, errCh := r.src.Stream(ctx)

	for bundle := range bundleCh {
		if r.done() {
			break
		}
		buildStart := time.Now()
		rec, err := r.builder.Build(bundle)
		buildTime := time.Since(buildStart)
		if err != nil {
			r.countFailure(err, "build")
			return fmt.Errorf("build event %d: %w", bundle.EventNumber, err)
		}
		if err := r.appendRecord(rec, buildTime); err != nil {
			return err
		}
	}

	// Unblock the source if the event budget cut the stream short.
	cancel()

	if err := <-errCh; err != nil && !r.done() {
		if m := metrics.Get(); m != nil {
			m.IncSourceErrors(r.cfg.Run.DetectorName, r.cfg.Source.Mode)
		}
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

// appendRecord validates and commits one record. Called from exactly one
// goroutine (the sequential loop or the sequencer).
func (r *Runner) appendRecord(rec *record.EventRecord, buildTime time.Duration) error {
	if v := ValidateRecord(rec); !v.Passed {
		r.countFailure(nil, "validate")
		logging.EventLogger(rec.EventNumber).Error("record failed validation",
			"errors", v.Errors)
		return fmt.Errorf("event %d failed validation: %v", rec.EventNumber, v.Errors)
	}

	appendStart := time.Now()
	if err := r.sess.Append(rec); err != nil {
		r.countFailure(err, "append")
		return fmt.Errorf("append event %d: %w", rec.EventNumber, err)
	}

	r.appendedEvents++
	r.lastEventNum = rec.EventNumber
	for _, coll := range rec.Collections {
		r.hitsByColl[coll.Name] += uint64(len(coll.Hits))
		r.hitsWritten += uint64(len(coll.Hits))
	}

	if m := metrics.Get(); m != nil {
		det := r.cfg.Run.DetectorName
		m.IncEventsWritten(det)
		m.SetLastEventNumber(det, float64(rec.EventNumber))
		m.ObserveBuildDuration(det, buildTime.Seconds())
		m.ObserveAppendDuration(det, time.Since(appendStart).Seconds())
		m.ObserveEventHits(det, float64(rec.HitCount()))
		for _, coll := range rec.Collections {
			m.AddHitsWritten(det, coll.Name, float64(len(coll.Hits)))
		}
	}
	return nil
}

func (r *Runner) countFailure(err error, stage string) {
	if m := metrics.Get(); m != nil {
		m.IncEventsFailed(r.cfg.Run.DetectorName, stage)
		if stage == "build" && err != nil {
			m.IncUnresolvedDetectors(r.cfg.Run.DetectorName)
		}
	}
}

// done reports whether the configured event budget is exhausted.
func (r *Runner) done() bool {
	return r.cfg.Run.MaxEvents > 0 && r.appendedEvents >= r.cfg.Run.MaxEvents
}

// finalize closes the run file, exports geometry, and publishes everything.
func (r *Runner) finalize(ctx context.Context, log *slog.Logger) error {
	count, err := r.sess.Close()
	if err != nil {
		return fmt.Errorf("close run file: %w", err)
	}
	log.Info("run file complete", "events_written", count, "hits_written", r.hitsWritten)

	geometryPath := filepath.Join(r.cfg.Output.Dir, r.cfg.Output.GeometryFile)
	if err := r.exp.Export(geometryPath, r.registry); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncExportErrors(r.cfg.Run.DetectorName)
		}
		return fmt.Errorf("export geometry: %w", err)
	}

	pub, err := r.publish(ctx, count, geometryPath)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncPublishErrors(r.cfg.Run.DetectorName, r.cfg.Output.Backend)
		}
		return fmt.Errorf("publish run: %w", err)
	}

	finishedAt := time.Now().UTC()
	if m := metrics.Get(); m != nil {
		if elapsed := finishedAt.Sub(r.startedAt).Seconds(); elapsed > 0 {
			m.SetEventsPerSecond(float64(count) / elapsed)
		}
	}

	if err := r.summaries.Save(ctx, &summary.RunSummary{
		DetectorName:  r.cfg.Run.DetectorName,
		RunNumber:     r.cfg.Run.RunNumber,
		EventsWritten: count,
		HitsWritten:   r.hitsWritten,
		WithTruth:     r.cfg.Run.DumpMCTruth,
		Collections:   r.assignment.Collections(),
		OutputFiles:   r.sess.Files(),
		GeometryFile:  geometryPath,
		Checksums:     pub.checksums,
		StartedAt:     r.startedAt,
		FinishedAt:    finishedAt,
	}); err != nil {
		log.Warn("save run summary failed", "error", err)
	}

	if err := r.emitter.EmitRunCompleted(ctx, r.buildNotice(count, pub)); err != nil {
		log.Warn("run completion notice failed", "error", err)
	}

	if known, err := r.catalog.RunExists(ctx, r.cfg.Run.DetectorName, r.cfg.Run.RunNumber); err != nil {
		log.Warn("catalog lookup failed", "error", err)
	} else if known {
		log.Warn("run already cataloged, skipping catalog record")
	} else if err := r.catalog.RecordRun(ctx, metadata.RunRecord{
		DetectorName:    r.cfg.Run.DetectorName,
		RunNumber:       r.cfg.Run.RunNumber,
		EventsWritten:   count,
		WithTruth:       r.cfg.Run.DumpMCTruth,
		StoragePath:     pub.dir,
		Checksums:       pub.checksums,
		ByteSizes:       pub.byteSizes,
		ProducerVersion: fmt.Sprintf("%s@%s", producerName, Version),
		BuildID:         pub.buildID,
		StartedAt:       r.startedAt,
		FinishedAt:      finishedAt,
	}); err != nil {
		log.Warn("catalog record failed", "error", err)
	}

	log.Info("run complete",
		"events_written", count,
		"run_file", r.sess.Path(),
		"geometry_file", geometryPath,
		"published_to", pub.dir)
	return nil
}

// Close releases the runner's long-lived resources.
func (r *Runner) Close() {
	r.emitter.Close()
	r.store.Close()
	r.catalog.Close()
}

// EventsWritten returns the number of committed events so far.
func (r *Runner) EventsWritten() uint64 {
	return r.sess.EventsWritten()
}
