package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/beamlinehq/hitwriter/internal/util"
)

// FileEmitter writes notices to local JSON files, one per run.
type FileEmitter struct {
	dir string
}

// NewFileEmitter creates the backup directory if needed.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	if dir == "" {
		dir = "./notices"
	}
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create notice dir: %w", err)
	}
	return &FileEmitter{dir: dir}, nil
}

// EmitRunCompleted saves the notice as {detector}_run{number}.json.
func (e *FileEmitter) EmitRunCompleted(_ context.Context, notice *Notice) error {
	return e.save(notice)
}

func (e *FileEmitter) save(notice *Notice) error {
	name := fmt.Sprintf("%s_run%d.json", notice.Run.DetectorName, notice.Run.RunNumber)
	data, err := json.MarshalIndent(notice, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := util.WriteFileAtomic(filepath.Join(e.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}
	return nil
}

// Close is a no-op.
func (e *FileEmitter) Close() error { return nil }
