// Package geometry holds the immutable detector registry the writer works
// against: per-detector placement and pixel model plus the global magnetic
// field. Positions and sizes are in millimeters, angles in radians, fields in
// tesla (the base units of the units package).
package geometry

import (
	"errors"
	"fmt"
)

// ErrDetectorNotFound is returned when a detector name is not registered.
var ErrDetectorNotFound = errors.New("detector not found in registry")

// PixelModel describes the sensitive pixel matrix of a detector.
type PixelModel struct {
	NPixelsX int
	NPixelsY int
	PitchX   float64 // mm
	PitchY   float64 // mm

	// SensorSize is the sensitive volume, Size the full assembly envelope.
	SensorSize Vector
	Size       Vector
}

// MatrixSize returns the extent of the pixel matrix (npixels * pitch) in mm.
func (m PixelModel) MatrixSize() (x, y float64) {
	return float64(m.NPixelsX) * m.PitchX, float64(m.NPixelsY) * m.PitchY
}

// Detector is one placed detector plane.
type Detector struct {
	Name        string
	Type        string
	Position    Vector
	Orientation Matrix
	Model       PixelModel
}

// Registry is the read-only detector registry for the process lifetime.
type Registry struct {
	detectorName string
	detectors    []*Detector
	byName       map[string]*Detector
	field        MagneticField
}

// NewRegistry builds a registry from an ordered detector list.
func NewRegistry(detectorName string, detectors []*Detector, field MagneticField) (*Registry, error) {
	byName := make(map[string]*Detector, len(detectors))
	for _, d := range detectors {
		if d.Name == "" {
			return nil, fmt.Errorf("detector with empty name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate detector name %q", d.Name)
		}
		byName[d.Name] = d
	}

	return &Registry{
		detectorName: detectorName,
		detectors:    detectors,
		byName:       byName,
		field:        field,
	}, nil
}

// DetectorName returns the global instrument name.
func (r *Registry) DetectorName() string {
	return r.detectorName
}

// Detectors returns the detectors in registry order.
func (r *Registry) Detectors() []*Detector {
	return r.detectors
}

// Get looks up a detector by name.
func (r *Registry) Get(name string) (*Detector, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDetectorNotFound, name)
	}
	return d, nil
}

// Has reports whether a detector name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Field returns the global magnetic field descriptor.
func (r *Registry) Field() MagneticField {
	return r.field
}
