package proximity

import (
	"testing"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
)

const metersPerDegLat = 111194.9

// claimedAt inserts a claimed territory centered the given meters north and
// east of the origin point.
func claimedAt(t *testing.T, repo territory.Repository, id string, origin geo.Point, north, east float64) {
	t.Helper()

	center := geo.Point{
		Lat: origin.Lat + north/metersPerDegLat,
		Lng: origin.Lng + east/(metersPerDegLat*0.6740),
	}
	err := repo.Insert(&territory.Territory{
		ID:            id,
		UniquenessKey: geo.UniquenessKey(center),
		Bounds: geo.Bounds{
			North: center.Lat + 0.001, South: center.Lat - 0.001,
			East: center.Lng + 0.001, West: center.Lng - 0.001,
			Center: center,
		},
		Metadata: territory.Metadata{Name: id},
		Status:   territory.StatusClaimed,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

// TestUpdate_SortedByDistance verifies the nearby list is ordered nearest
// first and excludes territories beyond the radius.
func TestUpdate_SortedByDistance(t *testing.T) {
	origin := geo.Point{Lat: 47.6062, Lng: -122.3321}
	repo := territory.NewInMemoryRepository()
	claimedAt(t, repo, "far", origin, 80, 0)
	claimedAt(t, repo, "near", origin, 30, 0)
	claimedAt(t, repo, "out-of-range", origin, 500, 0)

	m := NewMonitor(100, repo, nil)
	got := m.Update(origin)

	if len(got) != 2 {
		t.Fatalf("nearby = %d entries, want 2", len(got))
	}
	if got[0].TerritoryID != "near" || got[1].TerritoryID != "far" {
		t.Errorf("order = [%s %s], want [near far]", got[0].TerritoryID, got[1].TerritoryID)
	}
	if got[0].DistanceMeters < 25 || got[0].DistanceMeters > 35 {
		t.Errorf("near distance = %f, want ~30", got[0].DistanceMeters)
	}
	if got[0].Direction != geo.North {
		t.Errorf("direction = %s, want N", got[0].Direction)
	}
}

// TestUpdate_IgnoresClaimable verifies unclaimed territories never alert.
func TestUpdate_IgnoresClaimable(t *testing.T) {
	origin := geo.Point{Lat: 47.6062, Lng: -122.3321}
	repo := territory.NewInMemoryRepository()
	claimedAt(t, repo, "open", origin, 20, 0)

	open, err := repo.Get("open")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	open.Status = territory.StatusClaimable
	if err := repo.Update(open); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m := NewMonitor(100, repo, nil)
	if got := m.Update(origin); len(got) != 0 {
		t.Errorf("claimable territory reported nearby: %v", got)
	}
}

// TestUpdate_EdgeTriggeredAlerts verifies an alert fires once on entry and
// re-arms only after leaving the radius.
func TestUpdate_EdgeTriggeredAlerts(t *testing.T) {
	origin := geo.Point{Lat: 47.6062, Lng: -122.3321}
	outside := geo.Point{Lat: origin.Lat + 1000/metersPerDegLat, Lng: origin.Lng}

	repo := territory.NewInMemoryRepository()
	claimedAt(t, repo, "t1", origin, 40, 0)

	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	m := NewMonitor(100, repo, bus)

	drainAlerts := func() int {
		n := 0
		for len(ch) > 0 {
			ev := <-ch
			if ev.Kind != events.KindProximityAlert {
				t.Errorf("unexpected event kind %s", ev.Kind)
			}
			if ev.ProximityAlert == nil || ev.ProximityAlert.TerritoryID != "t1" {
				t.Errorf("alert payload = %+v", ev.ProximityAlert)
			}
			n++
		}
		return n
	}

	m.Update(origin)
	if got := drainAlerts(); got != 1 {
		t.Fatalf("alerts on entry = %d, want 1", got)
	}

	// Still inside: no repeat alert.
	m.Update(origin)
	if got := drainAlerts(); got != 0 {
		t.Fatalf("alerts while inside = %d, want 0", got)
	}

	// Leave, then return: alert fires again.
	m.Update(outside)
	if got := drainAlerts(); got != 0 {
		t.Fatalf("alerts after leaving = %d, want 0", got)
	}
	m.Update(origin)
	if got := drainAlerts(); got != 1 {
		t.Fatalf("alerts on re-entry = %d, want 1", got)
	}
}

// TestReset re-arms every alert regardless of position.
func TestReset(t *testing.T) {
	origin := geo.Point{Lat: 47.6062, Lng: -122.3321}
	repo := territory.NewInMemoryRepository()
	claimedAt(t, repo, "t1", origin, 40, 0)

	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	m := NewMonitor(100, repo, bus)
	m.Update(origin)
	for len(ch) > 0 {
		<-ch
	}

	m.Reset()
	m.Update(origin)
	if len(ch) != 1 {
		t.Errorf("alerts after reset = %d, want 1", len(ch))
	}
}

// TestDefaultThreshold applies when the configured radius is unset.
func TestDefaultThreshold(t *testing.T) {
	m := NewMonitor(0, territory.NewInMemoryRepository(), nil)
	if m.threshold != DefaultThresholdMeters {
		t.Errorf("threshold = %f, want %f", m.threshold, DefaultThresholdMeters)
	}
}
