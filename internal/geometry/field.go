package geometry

// FieldType classifies the magnetic field reported by the registry.
type FieldType int

const (
	// FieldNone means no magnetic field is defined.
	FieldNone FieldType = iota
	// FieldConstant is a spatially constant vector field.
	FieldConstant
	// FieldMap is a position-dependent field (not exportable as a constant).
	FieldMap
)

func (t FieldType) String() string {
	switch t {
	case FieldNone:
		return "none"
	case FieldConstant:
		return "constant"
	case FieldMap:
		return "map"
	default:
		return "unknown"
	}
}

// MagneticField describes the global field. The vector is in tesla.
type MagneticField struct {
	Type   FieldType
	vector Vector
}

// ConstantField returns a spatially constant field.
func ConstantField(v Vector) MagneticField {
	return MagneticField{Type: FieldConstant, vector: v}
}

// NoField returns the absent field.
func NoField() MagneticField {
	return MagneticField{Type: FieldNone}
}

// At samples the field at a point. For constant fields the point is ignored;
// for absent fields the zero vector is returned.
func (f MagneticField) At(_ Vector) Vector {
	if f.Type == FieldConstant {
		return f.vector
	}
	return Vector{}
}
