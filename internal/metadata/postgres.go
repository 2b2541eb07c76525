package metadata

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beamlinehq/hitwriter/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// PostgresCatalog implements Writer against PostgreSQL.
type PostgresCatalog struct {
	pool *pgxpool.Pool
	cfg  CatalogConfig
}

// NewPostgresCatalog connects to the catalog database and applies the schema.
func NewPostgresCatalog(cfg CatalogConfig) (*PostgresCatalog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logging.Component("metadata").Info("connected to run catalog")
	return &PostgresCatalog{pool: pool, cfg: cfg}, nil
}

// RecordRun upserts the run row and its artifact rows in one transaction.
func (c *PostgresCatalog) RecordRun(ctx context.Context, rec RunRecord) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var runID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO _meta_runs (
			namespace, detector_name, run_number, events_written, with_truth,
			storage_path, producer_version, build_id, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (namespace, detector_name, run_number)
		DO UPDATE SET
			events_written = EXCLUDED.events_written,
			with_truth     = EXCLUDED.with_truth,
			storage_path   = EXCLUDED.storage_path,
			finished_at    = EXCLUDED.finished_at,
			created_at     = NOW()
		RETURNING id
	`,
		c.cfg.Namespace,
		rec.DetectorName,
		int64(rec.RunNumber),
		int64(rec.EventsWritten),
		rec.WithTruth,
		rec.StoragePath,
		rec.ProducerVersion,
		rec.BuildID,
		rec.StartedAt,
		rec.FinishedAt,
	).Scan(&runID)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for file, checksum := range rec.Checksums {
		_, err = tx.Exec(ctx, `
			INSERT INTO _meta_artifacts (run_id, file, checksum, byte_size)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, file)
			DO UPDATE SET checksum = EXCLUDED.checksum, byte_size = EXCLUDED.byte_size
		`, runID, file, checksum, rec.ByteSizes[file])
		if err != nil {
			return fmt.Errorf("record artifact %s: %w", file, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.Component("metadata").Info("recorded run",
		"detector_name", rec.DetectorName,
		"run_number", rec.RunNumber,
		"events_written", rec.EventsWritten)
	return nil
}

// RunExists reports whether a run is already cataloged.
func (c *PostgresCatalog) RunExists(ctx context.Context, detectorName string, runNumber uint32) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM _meta_runs
			WHERE namespace = $1 AND detector_name = $2 AND run_number = $3
		)
	`, c.cfg.Namespace, detectorName, int64(runNumber)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check run exists: %w", err)
	}
	return exists, nil
}

// Close releases the connection pool.
func (c *PostgresCatalog) Close() {
	c.pool.Close()
}
