package run

import (
	"time"

	"github.com/beamlinehq/hitwriter/internal/record"
)

// Version information (set via ldflags).
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

const producerName = "hitwriter"

// EventTask is a unit of work for a build worker. Index is the position in
// the delivery order and drives the sequencer.
type EventTask struct {
	Index  uint64
	Bundle *record.EventBundle
}

// EventResult is returned from workers to the sequencer.
type EventResult struct {
	Task      EventTask
	Record    *record.EventRecord
	BuildTime time.Duration
	Err       error
}
