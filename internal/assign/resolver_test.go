package assign

import (
	"errors"
	"testing"

	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/geometry"
)

func testRegistry(t *testing.T, names ...string) *geometry.Registry {
	t.Helper()
	detectors := make([]*geometry.Detector, 0, len(names))
	for _, name := range names {
		detectors = append(detectors, &geometry.Detector{Name: name, Type: "mimosa26"})
	}
	reg, err := geometry.NewRegistry("telescope", detectors, geometry.NoField())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestResolveShortForm(t *testing.T) {
	reg := testRegistry(t, "plane0", "plane1", "dut")
	cfg := config.CollectionsConfig{OutputCollectionName: "zsdata_m26"}

	a, err := Resolve(cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	for _, det := range []string{"plane0", "plane1", "dut"} {
		coll, ok := a.Collection(det)
		if !ok || coll != "zsdata_m26" {
			t.Errorf("Collection(%s) = %q, %v; want zsdata_m26", det, coll, ok)
		}
	}
	if got := a.Collections(); len(got) != 1 || got[0] != "zsdata_m26" {
		t.Errorf("Collections() = %v, want [zsdata_m26]", got)
	}
}

func TestResolveLongForm(t *testing.T) {
	reg := testRegistry(t, "plane0", "plane1", "dut")
	cfg := config.CollectionsConfig{
		DetectorAssignment: map[string]string{
			"plane0": "zsdata_m26",
			"plane1": "zsdata_m26",
			"dut":    "zsdata_apix",
		},
	}

	a, err := Resolve(cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if coll, _ := a.Collection("dut"); coll != "zsdata_apix" {
		t.Errorf("Collection(dut) = %q, want zsdata_apix", coll)
	}
	// Collection order follows registry detector order, not map order.
	got := a.Collections()
	want := []string{"zsdata_m26", "zsdata_apix"}
	if len(got) != len(want) {
		t.Fatalf("Collections() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Collections()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolveLongFormPartial(t *testing.T) {
	reg := testRegistry(t, "plane0", "dut")
	cfg := config.CollectionsConfig{
		DetectorAssignment: map[string]string{"plane0": "zsdata_m26"},
	}

	a, err := Resolve(cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	// Detectors missing from the table fall back to the default collection.
	if coll, ok := a.Collection("dut"); !ok || coll != DefaultCollection {
		t.Errorf("Collection(dut) = %q, %v; want %q", coll, ok, DefaultCollection)
	}
	if a.Detectors() != 2 {
		t.Errorf("Detectors() = %d, want 2", a.Detectors())
	}
}

func TestResolveBothPrefersShort(t *testing.T) {
	reg := testRegistry(t, "plane0", "dut")
	cfg := config.CollectionsConfig{
		OutputCollectionName: "zsdata_m26",
		DetectorAssignment:   map[string]string{"dut": "zsdata_apix"},
	}

	a, err := Resolve(cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if coll, _ := a.Collection("dut"); coll != "zsdata_m26" {
		t.Errorf("Collection(dut) = %q, want short form zsdata_m26", coll)
	}
}

func TestResolveDefault(t *testing.T) {
	reg := testRegistry(t, "plane0")
	a, err := Resolve(config.CollectionsConfig{}, reg, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if coll, _ := a.Collection("plane0"); coll != DefaultCollection {
		t.Errorf("Collection(plane0) = %q, want %q", coll, DefaultCollection)
	}
}

func TestResolveUnknownDetector(t *testing.T) {
	reg := testRegistry(t, "plane0")
	cfg := config.CollectionsConfig{
		DetectorAssignment: map[string]string{"ghost": "zsdata_m26"},
	}
	_, err := Resolve(cfg, reg, nil)
	if !errors.Is(err, ErrUnknownDetector) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownDetector", err)
	}
}
