package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/beamlinehq/hitwriter/internal/record"
)

func testRecord(event uint64, hits int) *record.EventRecord {
	rec := &record.EventRecord{
		RunNumber:   1,
		EventNumber: event,
		Collections: []record.CollectionBuffer{{Name: "pixelhits"}},
	}
	for i := 0; i < hits; i++ {
		rec.Collections[0].Hits = append(rec.Collections[0].Hits, record.HitRow{
			RunNumber:   1,
			EventNumber: event,
			EventType:   record.EventTypeData,
			Collection:  "pixelhits",
			Detector:    "plane0",
			PixelX:      int32(i),
			PixelY:      int32(i * 2),
			Signal:      float64(100 + i),
			HitIndex:    int32(i),
		})
	}
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.hits.parquet")

	s := New(false, nil)

	if err := s.Append(testRecord(0, 1)); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("Append before open = %v, want ErrSessionNotOpen", err)
	}
	if _, err := s.Close(); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("Close before open = %v, want ErrSessionNotOpen", err)
	}

	if err := s.Open(path, 1, "telescope"); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := s.Open(path, 1, "telescope"); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("second Open = %v, want ErrAlreadyOpen", err)
	}

	const n = 5
	for i := uint64(0); i < n; i++ {
		if err := s.Append(testRecord(i, 2)); err != nil {
			t.Fatalf("Append(%d) error: %v", i, err)
		}
	}

	count, err := s.Close()
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if count != n {
		t.Errorf("Close() count = %d, want %d", count, n)
	}

	// Second close is a no-op returning the same count.
	again, err := s.Close()
	if err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if again != n {
		t.Errorf("second Close() count = %d, want %d", again, n)
	}

	if err := s.Append(testRecord(99, 1)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Append after close = %v, want ErrSessionClosed", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.hits.parquet")

	s := New(false, nil)
	if err := s.Open(path, 1, "telescope"); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := s.Append(testRecord(42, 3)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	rows, err := parquet.ReadFile[record.HitRow](path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("read %d rows, want 3", len(rows))
	}
	if rows[0].RunNumber != 1 || rows[0].EventNumber != 42 {
		t.Errorf("row run/event = %d/%d, want 1/42", rows[0].RunNumber, rows[0].EventNumber)
	}
	if rows[2].HitIndex != 2 {
		t.Errorf("row hit index = %d, want 2", rows[2].HitIndex)
	}
}

func TestSessionRunHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.hits.parquet")

	s := New(false, nil)
	if err := s.Open(path, 1, "telescope"); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}

	if got, ok := pf.Lookup(MetaRunNumber); !ok || got != "1" {
		t.Errorf("run_number = %q, %v; want \"1\"", got, ok)
	}
	if got, ok := pf.Lookup(MetaDetectorName); !ok || got != "telescope" {
		t.Errorf("detector_name = %q, %v; want telescope", got, ok)
	}
	if got, ok := pf.Lookup(MetaSchemaVersion); !ok || got != record.SchemaVersion {
		t.Errorf("schema_version = %q, %v", got, ok)
	}
}

func TestSessionTruthFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.hits.parquet")

	s := New(true, nil)
	if err := s.Open(path, 1, "telescope"); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	rec := testRecord(0, 1)
	rec.Clusters = []record.ClusterRow{{
		RunNumber: 1, EventNumber: 0, Detector: "plane0", HitIndex: 0, Charge: 1200,
	}}
	if err := s.Append(rec); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files := s.Files()
	if len(files) != 5 {
		t.Fatalf("Files() = %v, want 5 entries", files)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("missing output file %s: %v", f, err)
		}
	}

	clusters, err := parquet.ReadFile[record.ClusterRow](TruthPath(path, "mc_clusters"))
	if err != nil {
		t.Fatalf("read clusters: %v", err)
	}
	if len(clusters) != 1 || clusters[0].Charge != 1200 {
		t.Errorf("clusters = %+v", clusters)
	}
}

func TestSessionFailedAppendAborts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.hits.parquet")

	s := New(true, nil)
	if err := s.Open(path, 1, "telescope"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(testRecord(0, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Sabotage the tracks file so the next append fails mid-event.
	s.truth.tracks.file.Close()

	rec := testRecord(1, 2)
	rec.Tracks = []record.TrackRow{{RunNumber: 1, EventNumber: 1, TrackID: 1}}
	if err := s.Append(rec); err == nil {
		t.Fatal("expected append to fail on a closed tracks file")
	}

	if err := s.Append(testRecord(2, 1)); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("append after failure = %v, want ErrSessionFailed", err)
	}

	count, err := s.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if count != 1 {
		t.Errorf("events written = %d, want 1", count)
	}

	// The aborted run leaves no readable hits file behind.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("hits file still present after abort: %v", err)
	}
}

func TestTruthPath(t *testing.T) {
	got := TruthPath("data/run.hits.parquet", "mc_tracks")
	want := "data/run.mc_tracks.parquet"
	if got != want {
		t.Errorf("TruthPath = %q, want %q", got, want)
	}
}
