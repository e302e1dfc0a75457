package territory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/session"
)

type fakeKeys struct {
	exists bool
	err    error
	calls  int
}

func (f *fakeKeys) KeyExists(ctx context.Context, key string) (bool, error) {
	f.calls++
	return f.exists, f.err
}

type fakeLandmarks struct {
	names []string
	err   error
}

func (f *fakeLandmarks) Resolve(ctx context.Context, bounds geo.Bounds) ([]string, error) {
	return f.names, f.err
}

type fakeSpecial struct {
	special bool
}

func (f *fakeSpecial) IsSpecial(bounds geo.Bounds) bool {
	return f.special
}

// eligibleSession returns a completed, eligible session around downtown
// Seattle with controlled statistics.
func eligibleSession() session.Session {
	return session.Session{
		ID:          "sess-1",
		StartTimeMs: 1_000,
		Samples: []session.Sample{
			{Lat: 47.6062, Lng: -122.3321, TimestampMs: 1_000},
			{Lat: 47.6070, Lng: -122.3310, TimestampMs: 301_000},
			{Lat: 47.6078, Lng: -122.3321, TimestampMs: 601_000},
			{Lat: 47.6063, Lng: -122.3322, TimestampMs: 901_000},
		},
		Segments:            make([]session.Segment, 3),
		TotalDistanceMeters: 600,
		TotalDurationMs:     900_000,
		AvgSpeedMps:         0.667,
		MaxSpeedMps:         1.2,
		State:               session.StateCompleted,
		TerritoryEligible:   true,
	}
}

// TestSynthesize_IneligibleSession verifies the eligibility guard leaves no
// partial state.
func TestSynthesize_IneligibleSession(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{}, nil)

	sess := eligibleSession()
	sess.TerritoryEligible = false

	if _, err := syn.Synthesize(context.Background(), sess); !errors.Is(err, ErrIneligibleSession) {
		t.Errorf("error = %v, want ErrIneligibleSession", err)
	}
	if got := len(repo.Snapshot()); got != 0 {
		t.Errorf("repository holds %d territories after failed synthesis, want 0", got)
	}
}

// TestSynthesize_ProducesClaimableTerritory verifies the happy path: bounds,
// key, metadata, summary, and a published event.
func TestSynthesize_ProducesClaimableTerritory(t *testing.T) {
	repo := NewInMemoryRepository()
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	syn := NewSynthesizer(repo, &fakeLandmarks{names: []string{"Pioneer Square", "Waterfront"}}, nil, &fakeKeys{}, bus)

	sess := eligibleSession()
	got, err := syn.Synthesize(context.Background(), sess)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if got.Status != StatusClaimable {
		t.Errorf("status = %s, want claimable", got.Status)
	}
	if got.UniquenessKey == "" {
		t.Error("uniqueness key not set")
	}
	if got.Bounds.North <= got.Bounds.South || got.Bounds.East <= got.Bounds.West {
		t.Errorf("degenerate bounds: %+v", got.Bounds)
	}
	if got.Metadata.Name != "Pioneer Square Loop" {
		t.Errorf("name = %q", got.Metadata.Name)
	}
	if len(got.Metadata.Landmarks) != 2 {
		t.Errorf("landmarks = %v", got.Metadata.Landmarks)
	}
	if got.SessionSummary.SessionID != sess.ID {
		t.Errorf("session summary id = %q, want %q", got.SessionSummary.SessionID, sess.ID)
	}
	if got.SessionSummary.SegmentCount != 3 {
		t.Errorf("segment count = %d, want 3", got.SessionSummary.SegmentCount)
	}

	stored, err := repo.Get(got.ID)
	if err != nil {
		t.Fatalf("territory not stored: %v", err)
	}
	if stored.Status != StatusClaimable {
		t.Errorf("stored status = %s", stored.Status)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindTerritoryReady {
			t.Errorf("event kind = %s, want %s", ev.Kind, events.KindTerritoryReady)
		}
		if ev.TerritoryReady.TerritoryID != got.ID {
			t.Errorf("event territory = %q, want %q", ev.TerritoryReady.TerritoryID, got.ID)
		}
	default:
		t.Error("no territory event published")
	}
}

// TestSynthesize_LandmarkFailureFallsBack verifies landmark lookup failure
// is cosmetic: synthesis succeeds with the generic landmark set.
func TestSynthesize_LandmarkFailureFallsBack(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, &fakeLandmarks{err: errors.New("lookup down")}, nil, &fakeKeys{}, nil)

	got, err := syn.Synthesize(context.Background(), eligibleSession())
	if err != nil {
		t.Fatalf("Synthesize failed despite cosmetic lookup error: %v", err)
	}
	if len(got.Metadata.Landmarks) == 0 {
		t.Error("no fallback landmarks")
	}
}

// TestSynthesize_SpecialLocationOverridesRarity verifies the legendary
// override for designated locations.
func TestSynthesize_SpecialLocationOverridesRarity(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, &fakeSpecial{special: true}, &fakeKeys{}, nil)

	got, err := syn.Synthesize(context.Background(), eligibleSession())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if got.Metadata.Rarity != RarityLegendary {
		t.Errorf("rarity = %s, want legendary", got.Metadata.Rarity)
	}
	if math.Abs(got.Metadata.EstimatedReward-got.Metadata.Difficulty*3) > 1e-9 {
		t.Errorf("reward = %f, want difficulty*3", got.Metadata.EstimatedReward)
	}
}

// TestScoreDifficulty verifies the 40/30/30 weighting with per-dimension
// caps.
func TestScoreDifficulty(t *testing.T) {
	tests := []struct {
		name string
		sess session.Session
		want float64
	}{
		{
			name: "half of every cap",
			sess: session.Session{TotalDistanceMeters: 2500, AvgSpeedMps: 1.5, TotalDurationMs: 1_800_000},
			want: 50,
		},
		{
			name: "all dimensions at cap",
			sess: session.Session{TotalDistanceMeters: 5000, AvgSpeedMps: 3, TotalDurationMs: 3_600_000},
			want: 100,
		},
		{
			// Distance far past its cap only contributes its capped 40.
			name: "extreme distance capped",
			sess: session.Session{TotalDistanceMeters: 100_000, AvgSpeedMps: 0, TotalDurationMs: 0},
			want: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreDifficulty(tt.sess); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("scoreDifficulty = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestScoreRarity(t *testing.T) {
	tests := []struct {
		difficulty float64
		want       Rarity
	}{
		{difficulty: 0, want: RarityCommon},
		{difficulty: 49.9, want: RarityCommon},
		{difficulty: 50, want: RarityRare},
		{difficulty: 69.9, want: RarityRare},
		{difficulty: 70, want: RarityEpic},
		{difficulty: 89.9, want: RarityEpic},
		{difficulty: 90, want: RarityLegendary},
		{difficulty: 100, want: RarityLegendary},
	}

	for _, tt := range tests {
		if got := scoreRarity(tt.difficulty); got != tt.want {
			t.Errorf("scoreRarity(%.1f) = %s, want %s", tt.difficulty, got, tt.want)
		}
	}
}

// TestValidateUniqueness_OverlapWithClaimed verifies a candidate overlapping
// any claimed territory is rejected.
func TestValidateUniqueness_OverlapWithClaimed(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{}, nil)

	claimed := Territory{
		ID:            "t1",
		UniquenessKey: "c23nb62",
		Bounds:        geo.Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34},
		Status:        StatusClaimed,
	}
	if err := repo.Insert(&claimed); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	overlapping := geo.Bounds{North: 47.63, South: 47.61, East: -122.29, West: -122.32}
	if err := syn.ValidateUniqueness(context.Background(), overlapping, "othrkey"); !errors.Is(err, ErrTerritoryConflict) {
		t.Errorf("error = %v, want ErrTerritoryConflict", err)
	}

	disjoint := geo.Bounds{North: 47.70, South: 47.68, East: -122.30, West: -122.34}
	if err := syn.ValidateUniqueness(context.Background(), disjoint, "othrkey"); err != nil {
		t.Errorf("disjoint candidate rejected: %v", err)
	}
}

// TestValidateUniqueness_PendingClaimBlocks verifies pending_claim status
// blocks candidates just as claimed does.
func TestValidateUniqueness_PendingClaimBlocks(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{}, nil)

	pending := Territory{
		ID:            "t1",
		UniquenessKey: "c23nb62",
		Bounds:        geo.Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34},
		Status:        StatusPendingClaim,
	}
	if err := repo.Insert(&pending); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := syn.ValidateUniqueness(context.Background(), pending.Bounds, pending.UniquenessKey); !errors.Is(err, ErrTerritoryConflict) {
		t.Errorf("error = %v, want ErrTerritoryConflict", err)
	}
}

// TestValidateUniqueness_ClaimableDoesNotBlock verifies merely claimable
// territories are not part of the claimed set.
func TestValidateUniqueness_ClaimableDoesNotBlock(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{}, nil)

	claimable := Territory{
		ID:     "t1",
		Bounds: geo.Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34},
		Status: StatusClaimable,
	}
	if err := repo.Insert(&claimable); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := syn.ValidateUniqueness(context.Background(), claimable.Bounds, "somekey"); err != nil {
		t.Errorf("claimable territory blocked candidate: %v", err)
	}
}

// TestValidateUniqueness_RemoteKeyExists verifies the authoritative remote
// check rejects keys the local cache has not seen.
func TestValidateUniqueness_RemoteKeyExists(t *testing.T) {
	repo := NewInMemoryRepository()
	keys := &fakeKeys{exists: true}
	syn := NewSynthesizer(repo, nil, nil, keys, nil)

	bounds := geo.Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34}
	if err := syn.ValidateUniqueness(context.Background(), bounds, "c23nb62"); !errors.Is(err, ErrTerritoryConflict) {
		t.Errorf("error = %v, want ErrTerritoryConflict", err)
	}
	if keys.calls != 1 {
		t.Errorf("remote check called %d times, want 1", keys.calls)
	}
}

// TestValidateUniqueness_RemoteErrorPropagates verifies a ledger failure is
// reported as an error, not silently treated as available.
func TestValidateUniqueness_RemoteErrorPropagates(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{err: errors.New("ledger timeout")}, nil)

	bounds := geo.Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34}
	err := syn.ValidateUniqueness(context.Background(), bounds, "c23nb62")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrTerritoryConflict) {
		t.Error("ledger failure misreported as conflict")
	}
}

// TestSynthesize_SecondOverlappingSessionConflicts verifies synthesizing a
// second session whose bounds overlap the first, already-claimed territory
// fails with a conflict and stores nothing.
func TestSynthesize_SecondOverlappingSessionConflicts(t *testing.T) {
	repo := NewInMemoryRepository()
	syn := NewSynthesizer(repo, nil, nil, &fakeKeys{}, nil)

	first, err := syn.Synthesize(context.Background(), eligibleSession())
	if err != nil {
		t.Fatalf("first Synthesize failed: %v", err)
	}

	// The first territory gets claimed.
	first.Status = StatusClaimed
	if err := repo.Update(&first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	second := eligibleSession()
	second.ID = "sess-2"
	if _, err := syn.Synthesize(context.Background(), second); !errors.Is(err, ErrTerritoryConflict) {
		t.Errorf("error = %v, want ErrTerritoryConflict", err)
	}
	if got := len(repo.Snapshot()); got != 1 {
		t.Errorf("repository holds %d territories, want only the first", got)
	}
}
