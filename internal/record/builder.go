package record

import (
	"errors"
	"fmt"

	"github.com/beamlinehq/hitwriter/internal/assign"
)

// ErrUnresolvedDetector is returned when a capture carries hits for a
// detector that the assignment map does not cover.
var ErrUnresolvedDetector = errors.New("hit references unresolved detector")

// CollectionBuffer holds the hit rows of one output collection for one event.
type CollectionBuffer struct {
	Name string
	Hits []HitRow
}

// EventRecord is the fully built output of one event, ready to append.
// Collections appear in the resolver's declared order; truth tables are nil
// (not empty) when truth export is disabled.
type EventRecord struct {
	RunNumber   uint32
	EventNumber uint64
	Collections []CollectionBuffer

	Clusters    []ClusterRow
	RawClusters []RawClusterRow
	SimHits     []SimHitRow
	Tracks      []TrackRow
}

// HitCount returns the number of hit rows across all collections.
func (r *EventRecord) HitCount() int {
	var n int
	for _, c := range r.Collections {
		n += len(c.Hits)
	}
	return n
}

// Builder turns event bundles into event records. It performs no I/O and is
// safe for concurrent use once constructed.
type Builder struct {
	runNumber  uint32
	assignment *assign.Assignment
	withTruth  bool
}

// NewBuilder constructs a builder bound to a run number and an assignment
// map. When withTruth is false, truth data in the bundle is dropped.
func NewBuilder(runNumber uint32, assignment *assign.Assignment, withTruth bool) *Builder {
	return &Builder{
		runNumber:  runNumber,
		assignment: assignment,
		withTruth:  withTruth,
	}
}

// Build produces the event record for one bundle. The caller guarantees
// event numbers arrive in sequence; the builder does not validate gaps.
func (b *Builder) Build(bundle *EventBundle) (*EventRecord, error) {
	rec := &EventRecord{
		RunNumber:   b.runNumber,
		EventNumber: bundle.EventNumber,
	}

	// One buffer per collection, in the resolver's declared order.
	names := b.assignment.Collections()
	index := make(map[string]int, len(names))
	rec.Collections = make([]CollectionBuffer, len(names))
	for i, name := range names {
		rec.Collections[i] = CollectionBuffer{Name: name}
		index[name] = i
	}

	// Hit indices are per-detector ordinals continued across bundle
	// entries, so a detector split over two entries stays contiguous.
	nextIndex := make(map[string]int32)
	for _, det := range bundle.Detectors {
		coll, ok := b.assignment.Collection(det.Detector)
		if !ok {
			return nil, fmt.Errorf("%w: %q in event %d", ErrUnresolvedDetector, det.Detector, bundle.EventNumber)
		}
		buf := &rec.Collections[index[coll]]
		base := nextIndex[det.Detector]
		for i, hit := range det.Hits {
			buf.Hits = append(buf.Hits, HitRow{
				RunNumber:   b.runNumber,
				EventNumber: bundle.EventNumber,
				EventType:   EventTypeData,
				Collection:  coll,
				Detector:    det.Detector,
				PixelX:      hit.X,
				PixelY:      hit.Y,
				Signal:      hit.Signal,
				HitIndex:    base + int32(i),
			})
		}
		nextIndex[det.Detector] = base + int32(len(det.Hits))
		if b.withTruth && det.Truth != nil {
			b.appendTruth(rec, det.Detector, base, det.Truth)
		}
	}

	if b.withTruth {
		for _, trk := range bundle.Tracks {
			rec.Tracks = append(rec.Tracks, TrackRow{
				RunNumber:   b.runNumber,
				EventNumber: bundle.EventNumber,
				TrackID:     trk.TrackID,
				ParentID:    trk.ParentID,
				ParticleID:  trk.ParticleID,
				StartX:      trk.StartX,
				StartY:      trk.StartY,
				StartZ:      trk.StartZ,
				EndX:        trk.EndX,
				EndY:        trk.EndY,
				EndZ:        trk.EndZ,
				InitialKE:   trk.InitialKE,
			})
		}
	}

	return rec, nil
}

// appendTruth copies one entry's truth blocks. base rebases the entry-local
// hit indices onto the detector's running ordinal sequence.
func (b *Builder) appendTruth(rec *EventRecord, detector string, base int32, truth *HitTruth) {
	for _, c := range truth.Clusters {
		rec.Clusters = append(rec.Clusters, ClusterRow{
			RunNumber:   b.runNumber,
			EventNumber: rec.EventNumber,
			Detector:    detector,
			HitIndex:    base + c.HitIndex,
			Charge:      c.Charge,
			LocalX:      c.LocalX,
			LocalY:      c.LocalY,
			Size:        c.Size,
		})
	}
	for _, c := range truth.RawClusters {
		rec.RawClusters = append(rec.RawClusters, RawClusterRow{
			RunNumber:   b.runNumber,
			EventNumber: rec.EventNumber,
			Detector:    detector,
			HitIndex:    base + c.HitIndex,
			Charge:      c.Charge,
			Size:        c.Size,
		})
	}
	for _, h := range truth.SimHits {
		rec.SimHits = append(rec.SimHits, SimHitRow{
			RunNumber:   b.runNumber,
			EventNumber: rec.EventNumber,
			Detector:    detector,
			HitIndex:    base + h.HitIndex,
			EnergyDep:   h.EnergyDep,
			LocalX:      h.LocalX,
			LocalY:      h.LocalY,
			LocalZ:      h.LocalZ,
			ParticleID:  h.ParticleID,
			TrackID:     h.TrackID,
		})
	}
}
