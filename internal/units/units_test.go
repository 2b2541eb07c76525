package units

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in       string
		fallback string
		want     float64
	}{
		{"25mm", "mm", 25},
		{"2.54cm", "mm", 25.4},
		{"18.4um", "mm", 0.0184},
		{"1m", "mm", 1000},
		{"90deg", "rad", math.Pi / 2},
		{"0.5rad", "rad", 0.5},
		{"3.8T", "T", 3.8},
		{"500mT", "T", 0.5},
		{"12.5", "um", 0.0125}, // bare number takes the fallback unit
		{" 7 mm ", "mm", 7},
		{"1e3mm", "mm", 1000},
		{"2.5e-2m", "mm", 25},
		{"1E1deg", "rad", 10 * math.Pi / 180},
		{"-90deg", "rad", -math.Pi / 2},
	}

	for _, c := range cases {
		got, err := Parse(c.in, c.fallback)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", c.in, err)
		}
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("Parse(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseUnknownUnit(t *testing.T) {
	_, err := Parse("3parsec", "mm")
	if err == nil {
		t.Fatal("expected error for unknown unit")
	}
	if !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	base, err := Parse("1.25cm", "mm")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	back, err := Convert(base, "cm")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if math.Abs(back-1.25) > 1e-12 {
		t.Errorf("round trip = %v, want 1.25", back)
	}
}

func TestConvertAngleToDegrees(t *testing.T) {
	got, err := Convert(math.Pi, "deg")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if math.Abs(got-180) > 1e-9 {
		t.Errorf("Convert(pi, deg) = %v, want 180", got)
	}
}
