package notify

import (
	"context"
	"log/slog"

	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/logging"
)

// Emitter delivers run-completion notices.
type Emitter interface {
	EmitRunCompleted(ctx context.Context, notice *Notice) error
	Close() error
}

// NewEmitter selects an emitter from configuration: HTTP with local backup
// when an endpoint is set, file-only when just a backup directory is set,
// no-op when disabled.
func NewEmitter(cfg config.NotifyConfig) Emitter {
	logger := logging.Component("notify")

	if !cfg.Enabled {
		return noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg.Endpoint, cfg.BackupDir)
		if err != nil {
			logger.Warn("http emitter unavailable, falling back to file backup", "error", err)
			return newFileFallback(cfg.BackupDir, logger)
		}
		logger.Info("notice delivery over http", "endpoint", cfg.Endpoint)
		return emitter
	}

	return newFileFallback(cfg.BackupDir, logger)
}

func newFileFallback(dir string, logger *slog.Logger) Emitter {
	emitter, err := NewFileEmitter(dir)
	if err != nil {
		logger.Warn("file emitter unavailable, notices will be dropped", "error", err)
		return noopEmitter{}
	}
	return emitter
}

type noopEmitter struct{}

func (noopEmitter) EmitRunCompleted(context.Context, *Notice) error { return nil }

func (noopEmitter) Close() error { return nil }
