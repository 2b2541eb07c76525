package run

import (
	"fmt"

	"github.com/beamlinehq/hitwriter/internal/record"
)

// ValidationResult contains the outcome of record validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	HitCount int
}

// ValidateRecord performs quality checks on a built event record before it
// is appended:
// - every hit row carries the record's run and event number
// - hit indices are contiguous ordinals within each detector
// - collection buffers match their declared name
// - truth rows reference hit indices that exist
func ValidateRecord(rec *record.EventRecord) ValidationResult {
	result := ValidationResult{Passed: true}

	hitsByDetector := make(map[string]int)
	for _, coll := range rec.Collections {
		for _, hit := range coll.Hits {
			result.HitCount++

			if hit.RunNumber != rec.RunNumber || hit.EventNumber != rec.EventNumber {
				result.fail(fmt.Sprintf("hit in %s stamped %d/%d, record is %d/%d",
					coll.Name, hit.RunNumber, hit.EventNumber, rec.RunNumber, rec.EventNumber))
			}
			if hit.Collection != coll.Name {
				result.fail(fmt.Sprintf("hit labeled %q inside collection %q", hit.Collection, coll.Name))
			}
			if int(hit.HitIndex) != hitsByDetector[hit.Detector] {
				result.fail(fmt.Sprintf("detector %s hit index %d, expected %d",
					hit.Detector, hit.HitIndex, hitsByDetector[hit.Detector]))
			}
			hitsByDetector[hit.Detector]++
		}
	}

	for _, c := range rec.Clusters {
		if !truthIndexValid(hitsByDetector, c.Detector, c.HitIndex) {
			result.fail(fmt.Sprintf("cluster references missing hit %s/%d", c.Detector, c.HitIndex))
		}
	}
	for _, c := range rec.RawClusters {
		if !truthIndexValid(hitsByDetector, c.Detector, c.HitIndex) {
			result.fail(fmt.Sprintf("raw cluster references missing hit %s/%d", c.Detector, c.HitIndex))
		}
	}
	for _, h := range rec.SimHits {
		if !truthIndexValid(hitsByDetector, h.Detector, h.HitIndex) {
			result.fail(fmt.Sprintf("sim hit references missing hit %s/%d", h.Detector, h.HitIndex))
		}
	}

	return result
}

func truthIndexValid(hitsByDetector map[string]int, detector string, index int32) bool {
	return index >= 0 && int(index) < hitsByDetector[detector]
}

func (r *ValidationResult) fail(msg string) {
	r.Passed = false
	r.Errors = append(r.Errors, msg)
}
