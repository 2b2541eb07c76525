package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/beamlinehq/hitwriter/internal/config"
)

func testNotice() *Notice {
	return NewNotice(
		RunInfo{DetectorName: "telescope", RunNumber: 1, EventsWritten: 10},
		map[string]ArtifactInfo{
			"output.hits.parquet": {Checksum: "sha256:abc", ByteSize: 1024, StoragePath: "runs/telescope/run=1/output.hits.parquet"},
		},
		ProducerInfo{Name: "hitwriter", Version: "1.0.0"},
	)
}

func TestNewNoticeStamps(t *testing.T) {
	n := testNotice()
	if n.Version != NoticeVersion {
		t.Errorf("version = %q", n.Version)
	}
	if n.EventType != "run_completed" {
		t.Errorf("event type = %q", n.EventType)
	}
	if n.EventID == "" {
		t.Error("event ID not set")
	}
	if n.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestFileEmitter(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("NewFileEmitter: %v", err)
	}
	defer e.Close()

	if err := e.EmitRunCompleted(context.Background(), testNotice()); err != nil {
		t.Fatalf("EmitRunCompleted: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telescope_run1.json"))
	if err != nil {
		t.Fatalf("read notice: %v", err)
	}
	var decoded Notice
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal notice: %v", err)
	}
	if decoded.Run.EventsWritten != 10 {
		t.Errorf("events = %d, want 10", decoded.Run.EventsWritten)
	}
}

func TestHTTPEmitter(t *testing.T) {
	var received Notice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	dir := t.TempDir()
	e, err := NewHTTPEmitter(srv.URL, dir)
	if err != nil {
		t.Fatalf("NewHTTPEmitter: %v", err)
	}
	defer e.Close()

	if err := e.EmitRunCompleted(context.Background(), testNotice()); err != nil {
		t.Fatalf("EmitRunCompleted: %v", err)
	}
	if received.Run.DetectorName != "telescope" {
		t.Errorf("received detector = %q", received.Run.DetectorName)
	}

	// The backup copy exists regardless of delivery.
	if _, err := os.Stat(filepath.Join(dir, "telescope_run1.json")); err != nil {
		t.Errorf("missing backup notice: %v", err)
	}
}

func TestHTTPEmitterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEmitter(srv.URL, t.TempDir())
	if err != nil {
		t.Fatalf("NewHTTPEmitter: %v", err)
	}
	if err := e.EmitRunCompleted(context.Background(), testNotice()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestNewEmitterDisabled(t *testing.T) {
	e := NewEmitter(config.NotifyConfig{Enabled: false})
	if err := e.EmitRunCompleted(context.Background(), testNotice()); err != nil {
		t.Fatalf("noop emitter returned %v", err)
	}
}
