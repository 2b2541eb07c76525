// Package assign resolves which output collection each detector's hits are
// written to.
package assign

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/geometry"
)

// DefaultCollection is used when no collection mapping is configured.
const DefaultCollection = "pixelhits"

// ErrUnknownDetector is returned when the per-detector mapping names a
// detector that is not in the geometry registry.
var ErrUnknownDetector = errors.New("detector assignment references unknown detector")

// Assignment maps detectors to output collections. Collections preserves the
// registry's detector order, de-duplicated.
type Assignment struct {
	byDetector  map[string]string
	collections []string
}

// Resolve builds the detector-to-collection assignment from configuration.
//
// The short form (output_collection_name) assigns every registry detector to
// one collection. The long form (detector_assignment) maps detectors
// individually. When both are present the short form wins and the long form
// is ignored with a warning. When neither is present every detector goes to
// DefaultCollection.
func Resolve(cfg config.CollectionsConfig, registry *geometry.Registry, logger *slog.Logger) (*Assignment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	short := cfg.OutputCollectionName
	long := cfg.DetectorAssignment

	if short != "" && len(long) > 0 {
		logger.Warn("both output_collection_name and detector_assignment configured, using output_collection_name",
			slog.String("output_collection_name", short))
		long = nil
	}

	if short == "" && len(long) == 0 {
		short = DefaultCollection
	}

	byDetector := make(map[string]string, len(registry.Detectors()))

	if short != "" {
		for _, det := range registry.Detectors() {
			byDetector[det.Name] = short
		}
	} else {
		for name := range long {
			if !registry.Has(name) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, name)
			}
		}
		// Every registry detector gets a collection; unlisted ones fall back
		// to the default.
		for _, det := range registry.Detectors() {
			if coll, ok := long[det.Name]; ok {
				byDetector[det.Name] = coll
			} else {
				byDetector[det.Name] = DefaultCollection
			}
		}
	}

	// Collection order follows the registry's detector order, first seen wins.
	seen := make(map[string]bool)
	var collections []string
	for _, det := range registry.Detectors() {
		coll, ok := byDetector[det.Name]
		if !ok || seen[coll] {
			continue
		}
		seen[coll] = true
		collections = append(collections, coll)
	}

	return &Assignment{byDetector: byDetector, collections: collections}, nil
}

// Collection returns the output collection for a detector. ok is false when
// the detector has no assignment.
func (a *Assignment) Collection(detector string) (string, bool) {
	coll, ok := a.byDetector[detector]
	return coll, ok
}

// Collections returns all assigned collection names in registry order.
func (a *Assignment) Collections() []string {
	out := make([]string, len(a.collections))
	copy(out, a.collections)
	return out
}

// Detectors returns the number of detectors with an assignment.
func (a *Assignment) Detectors() int {
	return len(a.byDetector)
}
