// Package notify emits run-completion notices so downstream consumers learn
// that a run's artifacts are published and verifiable.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// NoticeVersion is the wire version of the notice format.
const NoticeVersion = "1.0"

// Notice is one run-completion event.
type Notice struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run       RunInfo                 `json:"run"`
	Artifacts map[string]ArtifactInfo `json:"artifacts"`
	Producer  ProducerInfo            `json:"producer"`
}

// RunInfo identifies the completed run.
type RunInfo struct {
	DetectorName  string `json:"detector_name"`
	RunNumber     uint32 `json:"run_number"`
	EventsWritten uint64 `json:"events_written"`
	WithTruth     bool   `json:"with_truth"`
}

// ArtifactInfo describes one published file.
type ArtifactInfo struct {
	Checksum    string `json:"checksum"`
	ByteSize    int64  `json:"byte_size"`
	StoragePath string `json:"storage_path"`
}

// ProducerInfo identifies the software that produced the run.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	BuildID string `json:"build_id,omitempty"`
}

// NewNotice stamps a run-completion notice with an ID and timestamp.
func NewNotice(run RunInfo, artifacts map[string]ArtifactInfo, producer ProducerInfo) *Notice {
	return &Notice{
		Version:   NoticeVersion,
		EventType: "run_completed",
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Run:       run,
		Artifacts: artifacts,
		Producer:  producer,
	}
}
