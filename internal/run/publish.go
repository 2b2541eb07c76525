package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/notify"
	"github.com/beamlinehq/hitwriter/internal/record"
	"github.com/beamlinehq/hitwriter/internal/storage"
)

// ErrAlreadyPublished is returned when the run's manifest already exists in
// the store; a published run is never overwritten.
var ErrAlreadyPublished = errors.New("run already published")

// publication summarizes what was uploaded for a finished run.
type publication struct {
	dir       string
	buildID   string
	checksums map[string]string
	byteSizes map[string]int64
	paths     map[string]string
}

// publish uploads the run file set and its manifest to the run store.
// The manifest goes last so its presence marks a complete publication.
func (r *Runner) publish(ctx context.Context, eventsWritten uint64, geometryPath string) (*publication, error) {
	ref := storage.RunRef{
		DetectorName: r.cfg.Run.DetectorName,
		RunNumber:    r.cfg.Run.RunNumber,
	}

	exists, err := r.store.Exists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("check run publication: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s run %d", ErrAlreadyPublished,
			ref.DetectorName, ref.RunNumber)
	}

	pub := &publication{
		dir:       r.store.URI(ref.Dir(r.cfg.Output.Prefix)),
		buildID:   uuid.NewString(),
		checksums: make(map[string]string),
		byteSizes: make(map[string]int64),
		paths:     make(map[string]string),
	}

	files := append(r.sess.Files(), geometryPath)
	artifacts := make(map[string]storage.ArtifactInfo, len(files))

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", path, err)
		}
		name := filepath.Base(path)
		if err := r.store.WriteArtifact(ctx, ref, name, data); err != nil {
			return nil, fmt.Errorf("upload artifact %s: %w", name, err)
		}

		checksum := record.ComputeChecksum(data)
		pub.checksums[name] = checksum
		pub.byteSizes[name] = int64(len(data))
		pub.paths[name] = ref.ArtifactPath(r.cfg.Output.Prefix, name)
		artifacts[name] = storage.ArtifactInfo{
			File:     name,
			Kind:     artifactKind(path, geometryPath),
			Checksum: checksum,
			ByteSize: int64(len(data)),
		}
	}

	manifest := &storage.Manifest{
		Run: storage.RunInfo{
			DetectorName:  r.cfg.Run.DetectorName,
			RunNumber:     r.cfg.Run.RunNumber,
			EventsWritten: eventsWritten,
			WithTruth:     r.cfg.Run.DumpMCTruth,
		},
		Artifacts: artifacts,
		Producer: storage.ProducerInfo{
			Name:    producerName,
			Version: Version,
			BuildID: pub.buildID,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.WriteManifest(ctx, ref, manifest); err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}

	r.log.Info("run artifacts published",
		"correlation_id", logging.CorrelationID(ctx),
		"artifacts", len(artifacts),
		"dir", pub.dir)
	return pub, nil
}

func artifactKind(path, geometryPath string) string {
	switch {
	case path == geometryPath:
		return "geometry"
	case strings.Contains(filepath.Base(path), ".mc_"):
		return "truth"
	default:
		return "hits"
	}
}

// buildNotice assembles the run-completion notice from a publication.
func (r *Runner) buildNotice(eventsWritten uint64, pub *publication) *notify.Notice {
	artifacts := make(map[string]notify.ArtifactInfo, len(pub.checksums))
	for name, checksum := range pub.checksums {
		artifacts[name] = notify.ArtifactInfo{
			Checksum:    checksum,
			ByteSize:    pub.byteSizes[name],
			StoragePath: pub.paths[name],
		}
	}
	return notify.NewNotice(
		notify.RunInfo{
			DetectorName:  r.cfg.Run.DetectorName,
			RunNumber:     r.cfg.Run.RunNumber,
			EventsWritten: eventsWritten,
			WithTruth:     r.cfg.Run.DumpMCTruth,
		},
		artifacts,
		notify.ProducerInfo{Name: producerName, Version: Version, BuildID: pub.buildID},
	)
}
