package geometry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/beamlinehq/hitwriter/internal/units"
)

// registryFile is the on-disk registry layout. All quantities are strings
// with an optional unit suffix, parsed through the units package.
type registryFile struct {
	DetectorName  string         `yaml:"detector_name"`
	MagneticField *fieldSpec     `yaml:"magnetic_field"`
	Detectors     []detectorSpec `yaml:"detectors"`
}

type fieldSpec struct {
	Type   string    `yaml:"type"` // "none" | "constant" | "map"
	Vector [3]string `yaml:"vector"`
}

type detectorSpec struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`
	Position    [3]string `yaml:"position"`
	Orientation [3]string `yaml:"orientation"` // rotations about x, y, z
	Model       modelSpec `yaml:"model"`
}

type modelSpec struct {
	NPixels    [2]int     `yaml:"npixels"`
	Pitch      [2]string  `yaml:"pitch"`
	SensorSize [3]string  `yaml:"sensor_size"`
	Size       *[3]string `yaml:"size"` // defaults to sensor_size
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geometry file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}

	if file.DetectorName == "" {
		return nil, fmt.Errorf("geometry: detector_name is required")
	}
	if len(file.Detectors) == 0 {
		return nil, fmt.Errorf("geometry: at least one detector is required")
	}

	field, err := parseField(file.MagneticField)
	if err != nil {
		return nil, err
	}

	detectors := make([]*Detector, 0, len(file.Detectors))
	for _, spec := range file.Detectors {
		d, err := parseDetector(spec)
		if err != nil {
			return nil, fmt.Errorf("geometry: detector %q: %w", spec.Name, err)
		}
		detectors = append(detectors, d)
	}

	return NewRegistry(file.DetectorName, detectors, field)
}

func parseField(spec *fieldSpec) (MagneticField, error) {
	if spec == nil || spec.Type == "" || spec.Type == "none" {
		return NoField(), nil
	}

	switch spec.Type {
	case "constant":
		v, err := parseVector(spec.Vector, "T")
		if err != nil {
			return MagneticField{}, fmt.Errorf("geometry: magnetic_field: %w", err)
		}
		return ConstantField(v), nil
	case "map":
		// Parsed so the exporter can report it, even though it cannot be
		// exported as a constant block.
		return MagneticField{Type: FieldMap}, nil
	default:
		return MagneticField{}, fmt.Errorf("geometry: unsupported magnetic_field type %q", spec.Type)
	}
}

func parseDetector(spec detectorSpec) (*Detector, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	position, err := parseVector(spec.Position, "mm")
	if err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}

	var angles [3]float64
	for i, s := range spec.Orientation {
		if s == "" {
			continue
		}
		angles[i], err = units.Parse(s, "rad")
		if err != nil {
			return nil, fmt.Errorf("orientation: %w", err)
		}
	}

	model, err := parseModel(spec.Model)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	return &Detector{
		Name:        spec.Name,
		Type:        spec.Type,
		Position:    position,
		Orientation: FromXYZAngles(angles[0], angles[1], angles[2]),
		Model:       model,
	}, nil
}

func parseModel(spec modelSpec) (PixelModel, error) {
	if spec.NPixels[0] <= 0 || spec.NPixels[1] <= 0 {
		return PixelModel{}, fmt.Errorf("npixels must be positive, got %v", spec.NPixels)
	}

	pitchX, err := units.Parse(spec.Pitch[0], "mm")
	if err != nil {
		return PixelModel{}, fmt.Errorf("pitch: %w", err)
	}
	pitchY, err := units.Parse(spec.Pitch[1], "mm")
	if err != nil {
		return PixelModel{}, fmt.Errorf("pitch: %w", err)
	}

	sensorSize, err := parseVector(spec.SensorSize, "mm")
	if err != nil {
		return PixelModel{}, fmt.Errorf("sensor_size: %w", err)
	}

	size := sensorSize
	if spec.Size != nil {
		size, err = parseVector(*spec.Size, "mm")
		if err != nil {
			return PixelModel{}, fmt.Errorf("size: %w", err)
		}
	}

	return PixelModel{
		NPixelsX:   spec.NPixels[0],
		NPixelsY:   spec.NPixels[1],
		PitchX:     pitchX,
		PitchY:     pitchY,
		SensorSize: sensorSize,
		Size:       size,
	}, nil
}

func parseVector(raw [3]string, fallbackUnit string) (Vector, error) {
	var out [3]float64
	for i, s := range raw {
		if s == "" {
			continue
		}
		v, err := units.Parse(s, fallbackUnit)
		if err != nil {
			return Vector{}, err
		}
		out[i] = v
	}
	return Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}
