// Package storage publishes finished run artifacts to local or cloud
// storage, together with a manifest describing them.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RunRef identifies one run's location in storage.
type RunRef struct {
	DetectorName string
	RunNumber    uint32
}

// Dir returns the storage directory for this run.
func (r RunRef) Dir(prefix string) string {
	return fmt.Sprintf("%s%s/run=%d", prefix, r.DetectorName, r.RunNumber)
}

// ArtifactPath returns the storage path for a named artifact of this run.
func (r RunRef) ArtifactPath(prefix, name string) string {
	return fmt.Sprintf("%s/%s", r.Dir(prefix), name)
}

// ManifestPath returns the storage path for this run's manifest.
func (r RunRef) ManifestPath(prefix string) string {
	return fmt.Sprintf("%s/_manifest.json", r.Dir(prefix))
}

// Manifest describes the published contents of a run directory.
type Manifest struct {
	Run       RunInfo                 `json:"run"`
	Artifacts map[string]ArtifactInfo `json:"artifacts"`
	Producer  ProducerInfo            `json:"producer"`
	CreatedAt time.Time               `json:"created_at"`
}

// RunInfo describes the run the artifacts belong to.
type RunInfo struct {
	DetectorName  string `json:"detector_name"`
	RunNumber     uint32 `json:"run_number"`
	EventsWritten uint64 `json:"events_written"`
	WithTruth     bool   `json:"with_truth"`
}

// ArtifactInfo describes a single published file.
type ArtifactInfo struct {
	File     string `json:"file"`
	Kind     string `json:"kind"` // "hits" | "truth" | "geometry"
	Checksum string `json:"checksum"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the run.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	BuildID string `json:"build_id,omitempty"`
}

// Encode returns the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// RunStore abstracts writing run artifacts to storage.
type RunStore interface {
	// WriteArtifact stores one named file under the run directory.
	WriteArtifact(ctx context.Context, ref RunRef, name string, data []byte) error

	// WriteManifest stores the run manifest. Written last, so a present
	// manifest marks a complete publication.
	WriteManifest(ctx context.Context, ref RunRef, manifest *Manifest) error

	// Exists reports whether the run was already published.
	Exists(ctx context.Context, ref RunRef) (bool, error)

	// URI returns the canonical URI for a storage key.
	URI(key string) string

	// Close releases any resources.
	Close() error
}
