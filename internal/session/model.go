// Package session provides the movement session recorder: it ingests noisy
// location samples, filters and smooths them into path segments, maintains
// running statistics, and evaluates territory eligibility on completion.
package session

import (
	"github.com/onnwee/turf/internal/geo"
)

// Sample is a single location fix from the location provider. Immutable once
// created.
type Sample struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	TimestampMs    int64   `json:"timestamp_ms"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}

// Point returns the sample's coordinate.
func (s Sample) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lng: s.Lng}
}

// Segment is the path between two consecutive accepted samples. Immutable;
// owned by the session that created it.
type Segment struct {
	ID             string       `json:"id"`
	Start          Sample       `json:"start"`
	End            Sample       `json:"end"`
	DistanceMeters float64      `json:"distance_meters"`
	DurationMs     int64        `json:"duration_ms"`
	AvgSpeedMps    float64      `json:"avg_speed_mps"`
	Line           [2]geo.Point `json:"line"`
}

// State is a session lifecycle state.
type State string

// Session states. Completed and cancelled are terminal; no transition leaves
// them.
const (
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Session is one recorded movement session. Mutated only by the Recorder;
// immutable once its state is terminal.
type Session struct {
	ID                  string    `json:"id"`
	StartTimeMs         int64     `json:"start_time_ms"`
	EndTimeMs           int64     `json:"end_time_ms,omitempty"`
	Samples             []Sample  `json:"samples"`
	Segments            []Segment `json:"segments"`
	TotalDistanceMeters float64   `json:"total_distance_meters"`
	TotalDurationMs     int64     `json:"total_duration_ms"`
	AvgSpeedMps         float64   `json:"avg_speed_mps"`
	MaxSpeedMps         float64   `json:"max_speed_mps"`
	State               State     `json:"state"`
	TerritoryEligible   bool      `json:"territory_eligible"`
	UniquenessKey       string    `json:"uniqueness_key,omitempty"`
}

// Clone returns a deep copy so callers never hold a reference into the
// recorder's live sample and segment slices.
func (s *Session) Clone() Session {
	out := *s
	out.Samples = make([]Sample, len(s.Samples))
	copy(out.Samples, s.Samples)
	out.Segments = make([]Segment, len(s.Segments))
	copy(out.Segments, s.Segments)
	return out
}

// Path returns the coordinates of all samples in order.
func (s *Session) Path() []geo.Point {
	points := make([]geo.Point, len(s.Samples))
	for i, sample := range s.Samples {
		points[i] = sample.Point()
	}
	return points
}
