package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/geometry"
	"github.com/beamlinehq/hitwriter/internal/record"
	"github.com/beamlinehq/hitwriter/internal/source"
	"github.com/beamlinehq/hitwriter/internal/storage"
)

func testRegistry(t *testing.T) *geometry.Registry {
	t.Helper()
	model := geometry.PixelModel{
		NPixelsX:   64,
		NPixelsY:   64,
		PitchX:     0.025,
		PitchY:     0.025,
		SensorSize: geometry.Vector{X: 1.6, Y: 1.6, Z: 0.05},
		Size:       geometry.Vector{X: 2.0, Y: 2.0, Z: 0.5},
	}
	detectors := []*geometry.Detector{
		{Name: "plane0", Type: "test", Position: geometry.Vector{Z: 0},
			Orientation: geometry.FromXYZAngles(0, 0, 0), Model: model},
		{Name: "plane1", Type: "test", Position: geometry.Vector{Z: 100},
			Orientation: geometry.FromXYZAngles(0, 0, math.Pi), Model: model},
	}
	reg, err := geometry.NewRegistry("telescope", detectors, geometry.NoField())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func writeCaptures(t *testing.T, dir string, events int) {
	t.Helper()
	for i := 0; i < events; i++ {
		bundle := record.EventBundle{
			EventNumber: uint64(i),
			Detectors: []record.DetectorHits{
				{Detector: "plane0", Hits: []record.PixelHit{
					{X: int32(i), Y: 1, Signal: 100},
					{X: int32(i), Y: 2, Signal: 200},
				}},
				{Detector: "plane1", Hits: []record.PixelHit{
					{X: 7, Y: int32(i), Signal: 300},
				}},
			},
		}
		data, err := json.Marshal(&bundle)
		if err != nil {
			t.Fatalf("marshal bundle: %v", err)
		}
		name := filepath.Join(dir, fmt.Sprintf("event-%08d.json", i))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			t.Fatalf("write capture: %v", err)
		}
	}
}

func testConfig(t *testing.T, captureDir string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Run.DetectorName = "telescope"
	cfg.Run.RunNumber = 42
	cfg.Output.Dir = t.TempDir()
	cfg.Output.FileName = "run.hits.parquet"
	cfg.Output.GeometryFile = "telescope.gear.xml"
	cfg.Source.Mode = "local"
	cfg.Source.LocalPath = captureDir
	cfg.Summary.Enabled = false
	return cfg
}

func newTestRunner(t *testing.T, cfg config.Config) (*Runner, source.HitSource) {
	t.Helper()
	ctx := context.Background()

	src, err := source.New(ctx, source.Config{Mode: "local", LocalPath: cfg.Source.LocalPath})
	if err != nil {
		t.Fatalf("source.New: %v", err)
	}
	r, err := New(ctx, cfg, testRegistry(t), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, src
}

func TestRunnerSequential(t *testing.T) {
	captureDir := t.TempDir()
	writeCaptures(t, captureDir, 5)

	cfg := testConfig(t, captureDir)
	r, src := newTestRunner(t, cfg)
	defer r.Close()
	defer src.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := r.EventsWritten(); got != 5 {
		t.Fatalf("EventsWritten = %d, want 5", got)
	}

	rows, err := parquet.ReadFile[record.HitRow](filepath.Join(cfg.Output.Dir, cfg.Output.FileName))
	if err != nil {
		t.Fatalf("read run file: %v", err)
	}
	if len(rows) != 15 {
		t.Fatalf("got %d hit rows, want 15", len(rows))
	}
	for _, row := range rows {
		if row.RunNumber != 42 {
			t.Fatalf("row run number = %d, want 42", row.RunNumber)
		}
		if row.Collection != "pixelhits" {
			t.Fatalf("row collection = %q, want pixelhits", row.Collection)
		}
	}

	if _, err := os.Stat(filepath.Join(cfg.Output.Dir, cfg.Output.GeometryFile)); err != nil {
		t.Errorf("geometry file missing: %v", err)
	}
	runDir := filepath.Join(cfg.Output.Dir, "runs", "telescope", "run=42")
	data, err := os.ReadFile(filepath.Join(runDir, "_manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest storage.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if manifest.Run.EventsWritten != 5 {
		t.Errorf("manifest events = %d, want 5", manifest.Run.EventsWritten)
	}
	for name, info := range manifest.Artifacts {
		artifact, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			t.Fatalf("read artifact %s: %v", name, err)
		}
		if !record.VerifyChecksum(artifact, info.Checksum) {
			t.Errorf("artifact %s fails checksum verification", name)
		}
	}
}

func TestRunnerParallelPreservesOrder(t *testing.T) {
	captureDir := t.TempDir()
	writeCaptures(t, captureDir, 20)

	cfg := testConfig(t, captureDir)
	cfg.Perf.Workers = 4
	r, src := newTestRunner(t, cfg)
	defer r.Close()
	defer src.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, err := parquet.ReadFile[record.HitRow](filepath.Join(cfg.Output.Dir, cfg.Output.FileName))
	if err != nil {
		t.Fatalf("read run file: %v", err)
	}
	var last uint64
	for i, row := range rows {
		if i > 0 && row.EventNumber < last {
			t.Fatalf("event %d written after event %d", row.EventNumber, last)
		}
		last = row.EventNumber
	}
	if last != 19 {
		t.Fatalf("last event = %d, want 19", last)
	}
}

func TestRunnerMaxEvents(t *testing.T) {
	captureDir := t.TempDir()
	writeCaptures(t, captureDir, 10)

	cfg := testConfig(t, captureDir)
	cfg.Run.MaxEvents = 3
	r, src := newTestRunner(t, cfg)
	defer r.Close()
	defer src.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := r.EventsWritten(); got != 3 {
		t.Fatalf("EventsWritten = %d, want 3", got)
	}
}

func TestRunnerRefusesRepublish(t *testing.T) {
	captureDir := t.TempDir()
	writeCaptures(t, captureDir, 2)

	cfg := testConfig(t, captureDir)
	first, src := newTestRunner(t, cfg)
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first.Close()
	src.Close()

	second, src2 := newTestRunner(t, cfg)
	defer second.Close()
	defer src2.Close()

	err := second.Run(context.Background())
	if !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("second run = %v, want ErrAlreadyPublished", err)
	}
}

func TestRunnerUnknownDetectorFatal(t *testing.T) {
	captureDir := t.TempDir()
	bundle := record.EventBundle{
		EventNumber: 0,
		Detectors: []record.DetectorHits{
			{Detector: "ghost", Hits: []record.PixelHit{{X: 1, Y: 1, Signal: 10}}},
		},
	}
	data, err := json.Marshal(&bundle)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	if err := os.WriteFile(filepath.Join(captureDir, "event-00000000.json"), data, 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}

	cfg := testConfig(t, captureDir)
	r, src := newTestRunner(t, cfg)
	defer r.Close()
	defer src.Close()

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected run to fail on an unregistered detector")
	}
}
