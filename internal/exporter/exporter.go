// Package exporter writes the static GEAR geometry description for a run.
// The document is built once from the detector registry at finalization and
// serialized as XML.
package exporter

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/beamlinehq/hitwriter/internal/geometry"
	"github.com/beamlinehq/hitwriter/internal/units"
	"github.com/beamlinehq/hitwriter/internal/util"
)

// Fixed radiation length attribute written for silicon planes.
const radLength = "93.65"

// GeometryDocument is the write-once GEAR document.
type GeometryDocument struct {
	XMLName   xml.Name      `xml:"gear"`
	Global    Global        `xml:"global"`
	BField    BField        `xml:"BField"`
	Detectors DetectorBlock `xml:"detectors"`
}

type Global struct {
	DetectorName string `xml:"detectorName,attr"`
}

type BField struct {
	Type string  `xml:"type,attr"`
	X    float64 `xml:"x,attr"`
	Y    float64 `xml:"y,attr"`
	Z    float64 `xml:"z,attr"`
}

type DetectorBlock struct {
	Detector PlanesDetector `xml:"detector"`
}

type PlanesDetector struct {
	Name     string       `xml:"name,attr"`
	GearType string       `xml:"geartype,attr"`
	Type     PlanesType   `xml:"siplanesType"`
	Number   PlanesNumber `xml:"siplanesNumber"`
	ID       PlanesID     `xml:"siplanesID"`
	Layers   Layers       `xml:"layers"`
}

type PlanesType struct {
	Type string `xml:"type,attr"`
}

type PlanesNumber struct {
	Number int `xml:"number,attr"`
}

type PlanesID struct {
	ID int `xml:"ID,attr"`
}

type Layers struct {
	Layers []Layer `xml:"layer"`
}

type Layer struct {
	Ladder    Ladder    `xml:"ladder"`
	Sensitive Sensitive `xml:"sensitive"`
}

type Ladder struct {
	ID         int     `xml:"ID,attr"`
	PositionX  float64 `xml:"positionX,attr"`
	PositionY  float64 `xml:"positionY,attr"`
	PositionZ  float64 `xml:"positionZ,attr"`
	RotationZY float64 `xml:"rotationZY,attr"`
	RotationZX float64 `xml:"rotationZX,attr"`
	RotationXY float64 `xml:"rotationXY,attr"`
	SizeX      float64 `xml:"sizeX,attr"`
	SizeY      float64 `xml:"sizeY,attr"`
	Thickness  float64 `xml:"thickness,attr"`
	RadLength  string  `xml:"radLength,attr"`
}

type Sensitive struct {
	ID         int     `xml:"ID,attr"`
	PositionX  float64 `xml:"positionX,attr"`
	PositionY  float64 `xml:"positionY,attr"`
	PositionZ  float64 `xml:"positionZ,attr"`
	SizeX      float64 `xml:"sizeX,attr"`
	SizeY      float64 `xml:"sizeY,attr"`
	Thickness  float64 `xml:"thickness,attr"`
	NPixelX    int     `xml:"npixelX,attr"`
	NPixelY    int     `xml:"npixelY,attr"`
	PitchX     float64 `xml:"pitchX,attr"`
	PitchY     float64 `xml:"pitchY,attr"`
	Resolution float64 `xml:"resolution,attr"`
	Rotation1  float64 `xml:"rotation1,attr"`
	Rotation2  float64 `xml:"rotation2,attr"`
	Rotation3  float64 `xml:"rotation3,attr"`
	Rotation4  float64 `xml:"rotation4,attr"`
	RadLength  string  `xml:"radLength,attr"`
}

// Exporter writes one geometry file per run.
type Exporter struct {
	logger *slog.Logger
}

// New returns an exporter logging through the given logger.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// BuildDocument assembles the GEAR document from the registry. All lengths
// are emitted in millimeters, rotations in degrees and the field in tesla.
// Rotation angles are negated relative to the matrix decomposition, matching
// the consuming format's convention.
func (e *Exporter) BuildDocument(registry *geometry.Registry) *GeometryDocument {
	doc := &GeometryDocument{
		Global: Global{DetectorName: registry.DetectorName()},
		BField: e.buildField(registry.Field()),
	}

	detectors := registry.Detectors()
	doc.Detectors.Detector = PlanesDetector{
		Name:     "SiPlanes",
		GearType: "SiPlanesParameters",
		Type:     PlanesType{Type: "TelescopeWithoutDUT"},
		Number:   PlanesNumber{Number: len(detectors)},
		ID:       PlanesID{ID: 0},
	}

	for i, det := range detectors {
		doc.Detectors.Detector.Layers.Layers = append(doc.Detectors.Detector.Layers.Layers, e.buildLayer(i, det))
	}
	return doc
}

func (e *Exporter) buildField(field geometry.MagneticField) BField {
	zero := BField{Type: "ConstantBField"}
	switch field.Type {
	case geometry.FieldConstant:
		v := field.At(geometry.Vector{})
		return BField{
			Type: "ConstantBField",
			X:    units.MustConvert(v.X, "T"),
			Y:    units.MustConvert(v.Y, "T"),
			Z:    units.MustConvert(v.Z, "T"),
		}
	case geometry.FieldNone:
		return zero
	default:
		e.logger.Warn("magnetic field type not representable in geometry file, writing null field",
			slog.String("field_type", field.Type.String()))
		return zero
	}
}

func (e *Exporter) buildLayer(id int, det *geometry.Detector) Layer {
	pos := det.Position
	model := det.Model
	matrixX, matrixY := model.MatrixSize()

	ax, ay, az := det.Orientation.Angles()

	ladder := Ladder{
		ID:         id,
		PositionX:  units.MustConvert(pos.X, "mm"),
		PositionY:  units.MustConvert(pos.Y, "mm"),
		PositionZ:  units.MustConvert(pos.Z, "mm"),
		RotationZY: units.MustConvert(-ax, "deg"),
		RotationZX: units.MustConvert(-ay, "deg"),
		RotationXY: units.MustConvert(-az, "deg"),
		SizeX:      units.MustConvert(model.Size.X, "mm"),
		SizeY:      units.MustConvert(model.Size.Y, "mm"),
		Thickness:  units.MustConvert(model.Size.Z, "mm"),
		RadLength:  radLength,
	}

	sensitive := Sensitive{
		ID:         id,
		PositionX:  units.MustConvert(pos.X, "mm"),
		PositionY:  units.MustConvert(pos.Y, "mm"),
		PositionZ:  units.MustConvert(pos.Z, "mm"),
		SizeX:      units.MustConvert(matrixX, "mm"),
		SizeY:      units.MustConvert(matrixY, "mm"),
		Thickness:  units.MustConvert(model.SensorSize.Z, "mm"),
		NPixelX:    model.NPixelsX,
		NPixelY:    model.NPixelsY,
		PitchX:     units.MustConvert(model.PitchX, "mm"),
		PitchY:     units.MustConvert(model.PitchY, "mm"),
		Resolution: units.MustConvert(model.PitchX/math.Sqrt(12), "mm"),
		Rotation1:  1.0,
		Rotation2:  0.0,
		Rotation3:  0.0,
		Rotation4:  1.0,
		RadLength:  radLength,
	}

	return Layer{Ladder: ladder, Sensitive: sensitive}
}

// Export builds the document and writes it to path.
func (e *Exporter) Export(path string, registry *geometry.Registry) error {
	doc := e.BuildDocument(registry)

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal geometry document: %w", err)
	}
	data := append([]byte(xml.Header), body...)
	data = append(data, '\n')

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create geometry directory: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write geometry file %s: %w", path, err)
	}

	e.logger.Info("wrote geometry file",
		slog.String("path", path),
		slog.Int("detectors", len(registry.Detectors())))
	return nil
}
