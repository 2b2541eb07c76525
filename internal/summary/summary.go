// Package summary persists a per-run summary file so operators can inspect
// what a finished run produced without opening the parquet output.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beamlinehq/hitwriter/internal/util"
)

// ErrNoSummary is returned when no summary exists for the run.
var ErrNoSummary = errors.New("no run summary found")

// RunSummary is the final state of one writing run.
type RunSummary struct {
	DetectorName  string            `json:"detector_name"`
	RunNumber     uint32            `json:"run_number"`
	EventsWritten uint64            `json:"events_written"`
	HitsWritten   uint64            `json:"hits_written"`
	WithTruth     bool              `json:"with_truth"`
	Collections   []string          `json:"collections"`
	OutputFiles   []string          `json:"output_files"`
	GeometryFile  string            `json:"geometry_file"`
	Checksums     map[string]string `json:"checksums,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// Manager persists and retrieves run summaries.
type Manager interface {
	Load(ctx context.Context, detectorName string, runNumber uint32) (*RunSummary, error)
	Save(ctx context.Context, s *RunSummary) error
}

// Config configures summary persistence.
type Config struct {
	Enabled bool
	Dir     string
}

// NewManager returns a file-backed manager, or a no-op one when disabled.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return noopManager{}, nil
	}
	if err := util.EnsureDir(cfg.Dir); err != nil {
		return nil, fmt.Errorf("create summary directory %s: %w", cfg.Dir, err)
	}
	return &fileManager{dir: cfg.Dir}, nil
}

type fileManager struct {
	dir string
}

func (m *fileManager) path(detectorName string, runNumber uint32) string {
	return filepath.Join(m.dir, fmt.Sprintf("summary_%s_run%d.json", detectorName, runNumber))
}

// Load reads a previously saved summary.
func (m *fileManager) Load(_ context.Context, detectorName string, runNumber uint32) (*RunSummary, error) {
	data, err := os.ReadFile(m.path(detectorName, runNumber))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSummary
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var s RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &s, nil
}

// Save writes the summary atomically.
func (m *fileManager) Save(_ context.Context, s *RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := util.WriteFileAtomic(m.path(s.DetectorName, s.RunNumber), data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

type noopManager struct{}

func (noopManager) Load(context.Context, string, uint32) (*RunSummary, error) {
	return nil, ErrNoSummary
}

func (noopManager) Save(context.Context, *RunSummary) error { return nil }
