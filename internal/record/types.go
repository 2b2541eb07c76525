package record

// PixelHit is one decoded pixel hit from a capture.
type PixelHit struct {
	X      int32   `json:"x"`
	Y      int32   `json:"y"`
	Signal float64 `json:"signal"`
}

// DetectorHits groups the hits of one detector within an event, in capture
// order. The hit index of a pixel hit is its ordinal in this slice.
type DetectorHits struct {
	Detector string     `json:"detector"`
	Hits     []PixelHit `json:"hits"`
	Truth    *HitTruth  `json:"truth,omitempty"`
}

// HitTruth carries the optional simulation truth attached to one detector's
// hits. Indices in the member slices refer to hit ordinals.
type HitTruth struct {
	Clusters    []TruthCluster    `json:"clusters,omitempty"`
	RawClusters []TruthRawCluster `json:"raw_clusters,omitempty"`
	SimHits     []TruthSimHit     `json:"sim_hits,omitempty"`
}

// TruthCluster is a propagated-charge cluster linked to a hit.
type TruthCluster struct {
	HitIndex int32   `json:"hit_index"`
	Charge   float64 `json:"charge"`
	LocalX   float64 `json:"local_x"`
	LocalY   float64 `json:"local_y"`
	Size     int32   `json:"size"`
}

// TruthRawCluster is a deposited-charge cluster linked to a hit.
type TruthRawCluster struct {
	HitIndex int32   `json:"hit_index"`
	Charge   float64 `json:"charge"`
	Size     int32   `json:"size"`
}

// TruthSimHit is a simulated energy deposit linked to a hit.
type TruthSimHit struct {
	HitIndex   int32   `json:"hit_index"`
	EnergyDep  float64 `json:"energy_dep"`
	LocalX     float64 `json:"local_x"`
	LocalY     float64 `json:"local_y"`
	LocalZ     float64 `json:"local_z"`
	ParticleID int32   `json:"particle_id"`
	TrackID    int32   `json:"track_id"`
}

// TruthTrack is a simulated particle track belonging to an event.
type TruthTrack struct {
	TrackID    int32   `json:"track_id"`
	ParentID   int32   `json:"parent_id"`
	ParticleID int32   `json:"particle_id"`
	StartX     float64 `json:"start_x"`
	StartY     float64 `json:"start_y"`
	StartZ     float64 `json:"start_z"`
	EndX       float64 `json:"end_x"`
	EndY       float64 `json:"end_y"`
	EndZ       float64 `json:"end_z"`
	InitialKE  float64 `json:"initial_ke"`
}

// EventBundle is one event's worth of decoded capture data, the input to
// record building.
type EventBundle struct {
	EventNumber uint64         `json:"event_number"`
	Detectors   []DetectorHits `json:"detectors"`
	Tracks      []TruthTrack   `json:"tracks,omitempty"`
}

// HitCount returns the total number of pixel hits across all detectors.
func (b *EventBundle) HitCount() int {
	var n int
	for _, d := range b.Detectors {
		n += len(d.Hits)
	}
	return n
}
