package territory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/tracing"
)

var (
	// ErrIneligibleSession is returned when synthesizing from a session that
	// did not qualify as a territory.
	ErrIneligibleSession = errors.New("session is not territory eligible")

	// ErrTerritoryConflict is returned when a candidate overlaps an already
	// claimed territory or its uniqueness key is already taken.
	ErrTerritoryConflict = errors.New("territory conflicts with a claimed territory")
)

// Difficulty scoring: each dimension is normalized against a cap and clamped
// to 1.0 before weighting, so one extreme dimension (a single very long run)
// cannot saturate the score.
const (
	difficultyDistanceCapMeters = 5000
	difficultySpeedCapMps       = 3.0
	difficultyDurationCapMs     = 3_600_000

	weightDistance = 0.4
	weightSpeed    = 0.3
	weightDuration = 0.3
)

// Rarity thresholds on the 0-100 difficulty scale.
const (
	rarityRareThreshold      = 50
	rarityEpicThreshold      = 70
	rarityLegendaryThreshold = 90
)

// genericLandmarks is the fallback used when landmark resolution fails.
// Landmark enrichment is cosmetic, never a hard dependency of synthesis.
var genericLandmarks = []string{"Local Park", "Main Street", "Riverside", "Old Town"}

// LandmarkResolver looks up human-readable landmarks within territory
// bounds. Best-effort: failures fall back to a generic set.
type LandmarkResolver interface {
	Resolve(ctx context.Context, bounds geo.Bounds) ([]string, error)
}

// SpecialLocationIndex reports whether the bounds cover a designated special
// location, which overrides rarity to legendary.
type SpecialLocationIndex interface {
	IsSpecial(bounds geo.Bounds) bool
}

// KeyChecker is the authoritative remote existence check for uniqueness
// keys, backed by the settlement ledger.
type KeyChecker interface {
	KeyExists(ctx context.Context, key string) (bool, error)
}

// Synthesizer converts completed, eligible sessions into claimable
// territories and validates candidates against the claimed set.
type Synthesizer struct {
	repo      Repository
	landmarks LandmarkResolver
	special   SpecialLocationIndex
	keys      KeyChecker
	bus       *events.Bus
}

// NewSynthesizer creates a synthesizer. landmarks, special, and bus may be
// nil; keys is required for uniqueness validation.
func NewSynthesizer(repo Repository, landmarks LandmarkResolver, special SpecialLocationIndex, keys KeyChecker, bus *events.Bus) *Synthesizer {
	return &Synthesizer{
		repo:      repo,
		landmarks: landmarks,
		special:   special,
		keys:      keys,
		bus:       bus,
	}
}

// Synthesize converts a completed session into a claimable territory.
// Returns ErrIneligibleSession if the session did not qualify, or
// ErrTerritoryConflict if the candidate overlaps the claimed set. No
// territory record is created on failure.
func (s *Synthesizer) Synthesize(ctx context.Context, sess session.Session) (t Territory, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "synthesize_territory",
		attribute.String("session_id", sess.ID))
	defer func() { endSpan(err) }()

	if !sess.TerritoryEligible {
		return Territory{}, ErrIneligibleSession
	}

	bounds := geo.BoundsFromPoints(sess.Path())
	key := sess.UniquenessKey
	if key == "" {
		key = geo.UniquenessKey(bounds.Center)
	}

	if err = s.ValidateUniqueness(ctx, bounds, key); err != nil {
		return Territory{}, err
	}

	difficulty := scoreDifficulty(sess)
	rarity := scoreRarity(difficulty)
	if s.special != nil && s.special.IsSpecial(bounds) {
		rarity = RarityLegendary
	}

	tracing.SetAttributes(ctx,
		attribute.String("uniqueness_key", key),
		attribute.Float64("difficulty", difficulty),
		attribute.String("rarity", string(rarity)))

	landmarks := s.resolveLandmarks(ctx, bounds)

	t = Territory{
		ID:            uuid.NewString(),
		UniquenessKey: key,
		Bounds:        bounds,
		Metadata: Metadata{
			Name:            territoryName(landmarks, key),
			Description:     territoryDescription(sess, rarity, landmarks),
			Landmarks:       landmarks,
			Difficulty:      difficulty,
			Rarity:          rarity,
			EstimatedReward: difficulty * rarity.rewardMultiplier(),
		},
		SessionSummary: SessionSummary{
			SessionID:           sess.ID,
			TotalDistanceMeters: sess.TotalDistanceMeters,
			TotalDurationMs:     sess.TotalDurationMs,
			AvgSpeedMps:         sess.AvgSpeedMps,
			MaxSpeedMps:         sess.MaxSpeedMps,
			SegmentCount:        len(sess.Segments),
		},
		Status: StatusClaimable,
	}

	if err = s.repo.Insert(&t); err != nil {
		return Territory{}, fmt.Errorf("failed to store territory: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind: events.KindTerritoryReady,
			TerritoryReady: &events.TerritoryReadyPayload{
				TerritoryID:   t.ID,
				UniquenessKey: t.UniquenessKey,
				Name:          t.Metadata.Name,
				Rarity:        string(t.Metadata.Rarity),
				Reward:        t.Metadata.EstimatedReward,
			},
		})
	}
	return t, nil
}

// ValidateUniqueness checks a candidate against the claimed set twice: the
// local cache via bounds overlap and key equality, then the authoritative
// remote key check. Both must pass because the local cache may be stale
// relative to the ledger.
func (s *Synthesizer) ValidateUniqueness(ctx context.Context, bounds geo.Bounds, key string) error {
	for _, claimed := range s.repo.ClaimedSet() {
		if claimed.UniquenessKey == key || bounds.Overlaps(claimed.Bounds) {
			return ErrTerritoryConflict
		}
	}

	if s.keys != nil {
		exists, err := s.keys.KeyExists(ctx, key)
		if err != nil {
			return fmt.Errorf("ledger key check failed: %w", err)
		}
		if exists {
			return ErrTerritoryConflict
		}
	}
	return nil
}

// resolveLandmarks performs the best-effort landmark lookup, falling back to
// the generic set on any failure.
func (s *Synthesizer) resolveLandmarks(ctx context.Context, bounds geo.Bounds) []string {
	if s.landmarks == nil {
		return append([]string(nil), genericLandmarks[:2]...)
	}

	names, err := s.landmarks.Resolve(ctx, bounds)
	if err != nil || len(names) == 0 {
		if err != nil {
			slog.Warn("landmark resolution failed, using generic set", "error", err)
		}
		return append([]string(nil), genericLandmarks[:2]...)
	}
	return names
}

// scoreDifficulty computes the weighted 0-100 difficulty score from session
// statistics.
func scoreDifficulty(sess session.Session) float64 {
	distance := clamp1(sess.TotalDistanceMeters / difficultyDistanceCapMeters)
	speed := clamp1(sess.AvgSpeedMps / difficultySpeedCapMps)
	duration := clamp1(float64(sess.TotalDurationMs) / difficultyDurationCapMs)

	return 100 * (weightDistance*distance + weightSpeed*speed + weightDuration*duration)
}

// scoreRarity maps difficulty to a rarity tier.
func scoreRarity(difficulty float64) Rarity {
	switch {
	case difficulty < rarityRareThreshold:
		return RarityCommon
	case difficulty < rarityEpicThreshold:
		return RarityRare
	case difficulty < rarityLegendaryThreshold:
		return RarityEpic
	default:
		return RarityLegendary
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// territoryName builds a display name from the nearest landmark, falling
// back to the uniqueness key.
func territoryName(landmarks []string, key string) string {
	if len(landmarks) > 0 {
		return fmt.Sprintf("%s Loop", landmarks[0])
	}
	return fmt.Sprintf("Territory %s", key)
}

// territoryDescription summarizes the originating run.
func territoryDescription(sess session.Session, rarity Rarity, landmarks []string) string {
	km := sess.TotalDistanceMeters / 1000
	if len(landmarks) > 1 {
		return fmt.Sprintf("A %.1f km %s loop passing %s and %s.", km, rarity, landmarks[0], landmarks[1])
	}
	if len(landmarks) == 1 {
		return fmt.Sprintf("A %.1f km %s loop near %s.", km, rarity, landmarks[0])
	}
	return fmt.Sprintf("A %.1f km %s loop.", km, rarity)
}
