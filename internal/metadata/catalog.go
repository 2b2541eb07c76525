// Package metadata records published runs in an optional Postgres catalog.
package metadata

import (
	"context"
	"time"
)

// CatalogConfig configures the run catalog.
type CatalogConfig struct {
	PostgresDSN string
	Namespace   string
}

// RunRecord is one published run's catalog entry.
type RunRecord struct {
	DetectorName    string
	RunNumber       uint32
	EventsWritten   uint64
	WithTruth       bool
	StoragePath     string
	Checksums       map[string]string
	ByteSizes       map[string]int64
	ProducerVersion string
	BuildID         string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Writer persists run records.
type Writer interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	RunExists(ctx context.Context, detectorName string, runNumber uint32) (bool, error)
	Close()
}

// NewWriter returns a Postgres-backed writer when a DSN is configured and a
// no-op writer otherwise.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresCatalog(cfg)
}

type noopWriter struct{}

func (noopWriter) RecordRun(context.Context, RunRecord) error { return nil }

func (noopWriter) RunExists(context.Context, string, uint32) (bool, error) { return false, nil }

func (noopWriter) Close() {}
