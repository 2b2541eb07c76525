// Package record defines the persistent row schemas for pixel-hit run files
// and builds per-event records from decoded hit captures.
package record

// Event type tag written into every hit row. Value 2 marks detector data
// events, matching the convention of downstream reconstruction tools.
const EventTypeData int32 = 2

// HitRow is one pixel hit in the main hits table.
type HitRow struct {
	RunNumber   uint32  `parquet:"run_number"`
	EventNumber uint64  `parquet:"event_number"`
	EventType   int32   `parquet:"event_type"`
	Collection  string  `parquet:"collection"`
	Detector    string  `parquet:"detector"`
	PixelX      int32   `parquet:"pixel_x"`
	PixelY      int32   `parquet:"pixel_y"`
	Signal      float64 `parquet:"signal"`
	HitIndex    int32   `parquet:"hit_index"`
}

// TableName returns the canonical table name.
func (HitRow) TableName() string {
	return "hits"
}

// ClusterRow is one truth cluster, linked to its hit by event number and
// hit index.
type ClusterRow struct {
	RunNumber   uint32  `parquet:"run_number"`
	EventNumber uint64  `parquet:"event_number"`
	Detector    string  `parquet:"detector"`
	HitIndex    int32   `parquet:"hit_index"`
	Charge      float64 `parquet:"charge"`
	LocalX      float64 `parquet:"local_x"` // mm
	LocalY      float64 `parquet:"local_y"` // mm
	Size        int32   `parquet:"size"`
}

func (ClusterRow) TableName() string {
	return "mc_clusters"
}

// RawClusterRow is one truth cluster before charge propagation.
type RawClusterRow struct {
	RunNumber   uint32  `parquet:"run_number"`
	EventNumber uint64  `parquet:"event_number"`
	Detector    string  `parquet:"detector"`
	HitIndex    int32   `parquet:"hit_index"`
	Charge      float64 `parquet:"charge"`
	Size        int32   `parquet:"size"`
}

func (RawClusterRow) TableName() string {
	return "mc_raw_clusters"
}

// SimHitRow is one simulated energy deposit linked to a pixel hit.
type SimHitRow struct {
	RunNumber   uint32  `parquet:"run_number"`
	EventNumber uint64  `parquet:"event_number"`
	Detector    string  `parquet:"detector"`
	HitIndex    int32   `parquet:"hit_index"`
	EnergyDep   float64 `parquet:"energy_dep"` // MeV
	LocalX      float64 `parquet:"local_x"`    // mm
	LocalY      float64 `parquet:"local_y"`    // mm
	LocalZ      float64 `parquet:"local_z"`    // mm
	ParticleID  int32   `parquet:"particle_id"`
	TrackID     int32   `parquet:"track_id"`
}

func (SimHitRow) TableName() string {
	return "mc_hits"
}

// TrackRow is one truth particle track referenced from an event.
type TrackRow struct {
	RunNumber   uint32  `parquet:"run_number"`
	EventNumber uint64  `parquet:"event_number"`
	TrackID     int32   `parquet:"track_id"`
	ParentID    int32   `parquet:"parent_id"`
	ParticleID  int32   `parquet:"particle_id"`
	StartX      float64 `parquet:"start_x"` // mm
	StartY      float64 `parquet:"start_y"` // mm
	StartZ      float64 `parquet:"start_z"` // mm
	EndX        float64 `parquet:"end_x"`   // mm
	EndY        float64 `parquet:"end_y"`   // mm
	EndZ        float64 `parquet:"end_z"`   // mm
	InitialKE   float64 `parquet:"initial_ke"` // MeV
}

func (TrackRow) TableName() string {
	return "mc_tracks"
}

// SchemaVersion identifies the row layout. Increment on breaking changes.
const SchemaVersion = "1.0.0"
