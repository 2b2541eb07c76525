package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamlinehq/hitwriter/internal/record"
)

func writeCapture(t *testing.T, dir string, event uint64) {
	t.Helper()
	bundle := record.EventBundle{
		EventNumber: event,
		Detectors: []record.DetectorHits{
			{Detector: "plane0", Hits: []record.PixelHit{{X: int32(event), Y: 0, Signal: 1}}},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("event-%08d.json", event))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
}

func TestSpoolSourceDrainsCompleted(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, 0)
	writeCapture(t, dir, 1)
	if err := os.WriteFile(filepath.Join(dir, CompleteMarker), nil, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	src, err := NewSpoolSource(dir)
	if err != nil {
		t.Fatalf("NewSpoolSource: %v", err)
	}
	defer src.Close()

	bundleCh, errCh := src.Stream(context.Background())
	var events []uint64
	for bundle := range bundleCh {
		events = append(events, bundle.EventNumber)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(events) != 2 || events[0] != 0 || events[1] != 1 {
		t.Errorf("events = %v, want [0 1]", events)
	}
}

func TestSpoolSourceLiveArrival(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, 0)

	src, err := NewSpoolSource(dir)
	if err != nil {
		t.Fatalf("NewSpoolSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bundleCh, errCh := src.Stream(ctx)

	first := <-bundleCh
	if first == nil || first.EventNumber != 0 {
		t.Fatalf("first bundle = %+v, want event 0", first)
	}

	// Producer keeps going after the stream started.
	writeCapture(t, dir, 1)
	second := <-bundleCh
	if second == nil || second.EventNumber != 1 {
		t.Fatalf("second bundle = %+v, want event 1", second)
	}

	if err := os.WriteFile(filepath.Join(dir, CompleteMarker), nil, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	for range bundleCh {
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
}

func TestSpoolSourceHoldsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	// Event 1 exists but 0 does not yet; nothing may be emitted.
	writeCapture(t, dir, 1)

	src, err := NewSpoolSource(dir)
	if err != nil {
		t.Fatalf("NewSpoolSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bundleCh, errCh := src.Stream(ctx)

	select {
	case bundle := <-bundleCh:
		t.Fatalf("premature bundle %+v before event 0 arrived", bundle)
	case <-time.After(300 * time.Millisecond):
	}

	writeCapture(t, dir, 0)
	first := <-bundleCh
	second := <-bundleCh
	if first.EventNumber != 0 || second.EventNumber != 1 {
		t.Fatalf("order = %d, %d; want 0, 1", first.EventNumber, second.EventNumber)
	}

	if err := os.WriteFile(filepath.Join(dir, CompleteMarker), nil, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	for range bundleCh {
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
}
