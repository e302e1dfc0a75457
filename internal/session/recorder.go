package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/geo"
)

var (
	// ErrAlreadyRecording is returned when starting a session while another
	// is active.
	ErrAlreadyRecording = errors.New("a session is already being recorded")

	// ErrNoActiveSession is returned when completing with no active session.
	ErrNoActiveSession = errors.New("no active session")
)

// Config holds the recorder's filtering and eligibility tunables.
type Config struct {
	// AccuracyThresholdMeters rejects samples with a worse reported accuracy.
	AccuracyThresholdMeters float64

	// MinSampleIntervalMs rejects samples arriving sooner after the last
	// accepted sample.
	MinSampleIntervalMs int64

	// MinMovementMeters rejects samples closer to the last accepted sample.
	MinMovementMeters float64

	// SmoothingFactor blends an accepted sample toward the previous one:
	// blended = last + factor * (new - last).
	SmoothingFactor float64

	// MinTerritoryDistanceMeters is the minimum total distance for
	// territory eligibility.
	MinTerritoryDistanceMeters float64

	// MaxLoopDeviationMeters is the maximum start-to-end distance for a
	// path to count as a closed loop.
	MaxLoopDeviationMeters float64
}

// DefaultConfig returns the recorder defaults. The triple filter exists
// because consumer-grade GPS jitters even when stationary; without it a
// stationary user accrues spurious distance.
func DefaultConfig() Config {
	return Config{
		AccuracyThresholdMeters:    20,
		MinSampleIntervalMs:        1000,
		MinMovementMeters:          5,
		SmoothingFactor:            0.3,
		MinTerritoryDistanceMeters: 500,
		MaxLoopDeviationMeters:     50,
	}
}

// Recorder owns at most one active session and serializes all mutations.
// Sample ingestion must be sequential because smoothing depends on the
// previously accepted sample.
type Recorder struct {
	mu      sync.Mutex
	cfg     Config
	bus     *events.Bus
	metrics *Metrics

	active *Session
	// last is the previously accepted (post-smoothing) sample; the anchor
	// for the interval/movement filters and the blend.
	last Sample
}

// NewRecorder creates a recorder. The bus and metrics may be nil.
func NewRecorder(cfg Config, bus *events.Bus, metrics *Metrics) *Recorder {
	return &Recorder{cfg: cfg, bus: bus, metrics: metrics}
}

// Start begins a new session anchored at the initial location. Returns
// ErrAlreadyRecording if a session is active.
func (r *Recorder) Start(initial Sample) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return Session{}, ErrAlreadyRecording
	}

	s := &Session{
		ID:          uuid.NewString(),
		StartTimeMs: initial.TimestampMs,
		Samples:     []Sample{initial},
		State:       StateRecording,
	}
	r.active = s
	r.last = initial

	r.publishState(s.ID, "", StateRecording)
	return s.Clone(), nil
}

// Ingest processes one raw sample. Samples are silently dropped while not
// recording, or when they fail the accuracy, interval, or movement filter.
// Returns true if the sample was accepted and produced a segment.
func (r *Recorder) Ingest(raw Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateRecording {
		return false
	}

	if r.cfg.AccuracyThresholdMeters > 0 && raw.AccuracyMeters > r.cfg.AccuracyThresholdMeters {
		r.metrics.sampleRejected(RejectAccuracy)
		return false
	}
	if raw.TimestampMs-r.last.TimestampMs < r.cfg.MinSampleIntervalMs {
		r.metrics.sampleRejected(RejectInterval)
		return false
	}
	if geo.DistanceMeters(r.last.Point(), raw.Point()) < r.cfg.MinMovementMeters {
		r.metrics.sampleRejected(RejectMovement)
		return false
	}

	// Exponential blend toward the last accepted sample suppresses
	// single-sample spikes while preserving the movement trend.
	f := r.cfg.SmoothingFactor
	blended := Sample{
		Lat:            r.last.Lat + f*(raw.Lat-r.last.Lat),
		Lng:            r.last.Lng + f*(raw.Lng-r.last.Lng),
		TimestampMs:    raw.TimestampMs,
		AccuracyMeters: raw.AccuracyMeters,
	}

	seg := Segment{
		ID:             uuid.NewString(),
		Start:          r.last,
		End:            blended,
		DistanceMeters: geo.DistanceMeters(r.last.Point(), blended.Point()),
		DurationMs:     blended.TimestampMs - r.last.TimestampMs,
		Line:           [2]geo.Point{r.last.Point(), blended.Point()},
	}
	if seg.DurationMs > 0 {
		seg.AvgSpeedMps = seg.DistanceMeters / (float64(seg.DurationMs) / 1000)
	}

	s.Samples = append(s.Samples, blended)
	s.Segments = append(s.Segments, seg)
	s.TotalDistanceMeters += seg.DistanceMeters
	s.TotalDurationMs = blended.TimestampMs - s.StartTimeMs
	if s.TotalDurationMs > 0 {
		s.AvgSpeedMps = s.TotalDistanceMeters / (float64(s.TotalDurationMs) / 1000)
	}
	if seg.AvgSpeedMps > s.MaxSpeedMps {
		s.MaxSpeedMps = seg.AvgSpeedMps
	}
	r.last = blended

	r.metrics.sampleAccepted()
	if r.bus != nil {
		r.bus.Publish(events.Event{
			Kind: events.KindSessionStats,
			SessionStats: &events.SessionStatsPayload{
				SessionID:           s.ID,
				TotalDistanceMeters: s.TotalDistanceMeters,
				TotalDurationMs:     s.TotalDurationMs,
				AvgSpeedMps:         s.AvgSpeedMps,
				MaxSpeedMps:         s.MaxSpeedMps,
				SegmentCount:        len(s.Segments),
			},
		})
	}
	return true
}

// Pause suspends sample ingestion. A no-op unless currently recording;
// duplicate control signals are tolerated.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateRecording {
		return
	}
	s.State = StatePaused
	r.publishState(s.ID, StateRecording, StatePaused)
}

// Resume re-enables sample ingestion. A no-op unless currently paused.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StatePaused {
		return
	}
	s.State = StateRecording
	r.publishState(s.ID, StatePaused, StateRecording)
}

// Complete finalizes the active session: freezes the end time, evaluates
// territory eligibility, and returns the frozen session by value. The
// recorder releases the session; a new one may be started afterwards.
func (r *Recorder) Complete() (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State.Terminal() {
		return Session{}, ErrNoActiveSession
	}

	from := s.State
	s.State = StateCompleted
	s.EndTimeMs = time.Now().UnixMilli()
	if n := len(s.Samples); n > 0 {
		s.TotalDurationMs = s.Samples[n-1].TimestampMs - s.StartTimeMs
	}
	if s.TotalDurationMs > 0 {
		s.AvgSpeedMps = s.TotalDistanceMeters / (float64(s.TotalDurationMs) / 1000)
	}

	r.evaluateEligibility(s)
	r.active = nil

	r.metrics.sessionFinished(string(StateCompleted))
	r.publishState(s.ID, from, StateCompleted)
	return s.Clone(), nil
}

// Cancel discards the active session immediately and irreversibly. A no-op
// when no session is active.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil {
		return
	}
	from := s.State
	s.State = StateCancelled
	r.active = nil

	r.metrics.sessionFinished(string(StateCancelled))
	r.publishState(s.ID, from, StateCancelled)
}

// Active returns a snapshot of the live session, if any.
func (r *Recorder) Active() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return Session{}, false
	}
	return r.active.Clone(), true
}

// evaluateEligibility runs once at completion. A session is eligible iff it
// covers the minimum distance and its path closes into an approximate loop;
// a one-way path has no natural boundary worth claiming. The uniqueness key
// is derived from the rounded bounds center only, never from wall-clock
// time, so repeated attempts at the same loop collide in the claim check.
func (r *Recorder) evaluateEligibility(s *Session) {
	if s.TotalDistanceMeters < r.cfg.MinTerritoryDistanceMeters {
		return
	}
	first := s.Samples[0]
	last := s.Samples[len(s.Samples)-1]
	if geo.DistanceMeters(first.Point(), last.Point()) > r.cfg.MaxLoopDeviationMeters {
		return
	}

	s.TerritoryEligible = true
	bounds := geo.BoundsFromPoints(s.Path())
	s.UniquenessKey = geo.UniquenessKey(bounds.Center)
}

func (r *Recorder) publishState(sessionID string, from, to State) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Kind: events.KindSessionState,
		SessionState: &events.SessionStatePayload{
			SessionID: sessionID,
			From:      string(from),
			To:        string(to),
		},
	})
}
