// Package source streams decoded per-event hit captures from a capture
// archive, either on the local filesystem or in a blob store.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/beamlinehq/hitwriter/internal/record"
)

// ErrInvalidSourceMode is returned for an unrecognized source mode.
var ErrInvalidSourceMode = errors.New("invalid source mode")

// HitSource streams event bundles in event-number order.
type HitSource interface {
	Stream(ctx context.Context) (<-chan *record.EventBundle, <-chan error)
	Close() error
}

// Config selects and parameterizes a hit source.
type Config struct {
	Mode       string // "local" | "blob"
	LocalPath  string
	BlobURL    string // gs://bucket or s3://bucket
	BlobPrefix string
}

// New constructs a hit source for the configured mode.
func New(ctx context.Context, cfg Config) (HitSource, error) {
	switch cfg.Mode {
	case "local":
		return NewLocalSource(cfg.LocalPath)
	case "blob":
		return NewBlobSource(ctx, cfg.BlobURL, cfg.BlobPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceMode, cfg.Mode)
	}
}
