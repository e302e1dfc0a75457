// Package proximity watches a live position against the set of claimed
// territories and raises edge-triggered alerts when the position comes
// within range of one.
package proximity

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
)

// DefaultThresholdMeters is the alert radius used when no override is
// configured.
const DefaultThresholdMeters = 100.0

// Nearby describes one territory within the alert radius of the current
// position. Distance is measured to the territory's bounds center.
type Nearby struct {
	TerritoryID    string        `json:"territory_id"`
	Name           string        `json:"name"`
	DistanceMeters float64       `json:"distance_meters"`
	Direction      geo.Direction `json:"direction"`
}

// Monitor tracks which territories the current position is inside the alert
// radius of. An alert fires once on entry and re-arms only after the
// position leaves the radius again.
type Monitor struct {
	threshold float64
	repo      territory.Repository
	bus       *events.Bus

	mu      sync.Mutex
	alerted map[string]bool
}

func NewMonitor(thresholdMeters float64, repo territory.Repository, bus *events.Bus) *Monitor {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Monitor{
		threshold: thresholdMeters,
		repo:      repo,
		bus:       bus,
		alerted:   make(map[string]bool),
	}
}

// Update recomputes proximity for a new position. It returns every claimed
// or pending territory within the alert radius, sorted nearest first, and
// publishes an alert event for each territory newly entering the radius.
func (m *Monitor) Update(pos geo.Point) []Nearby {
	claimed := m.repo.ClaimedSet()

	var nearby []Nearby
	inRange := make(map[string]bool, len(claimed))
	for i := range claimed {
		t := &claimed[i]
		d := geo.DistanceMeters(pos, t.Bounds.Center)
		if d > m.threshold {
			continue
		}
		inRange[t.ID] = true
		nearby = append(nearby, Nearby{
			TerritoryID:    t.ID,
			Name:           t.Metadata.Name,
			DistanceMeters: d,
			Direction:      geo.BearingDirection(pos, t.Bounds.Center),
		})
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceMeters < nearby[j].DistanceMeters
	})

	m.mu.Lock()
	var fresh []Nearby
	for _, n := range nearby {
		if !m.alerted[n.TerritoryID] {
			m.alerted[n.TerritoryID] = true
			fresh = append(fresh, n)
		}
	}
	// Re-arm territories the position has left.
	for id := range m.alerted {
		if !inRange[id] {
			delete(m.alerted, id)
		}
	}
	m.mu.Unlock()

	for _, n := range fresh {
		slog.Debug("proximity alert", "territory_id", n.TerritoryID, "distance_m", n.DistanceMeters, "direction", n.Direction)
		if m.bus != nil {
			m.bus.Publish(events.Event{
				Kind: events.KindProximityAlert,
				ProximityAlert: &events.ProximityAlertPayload{
					TerritoryID:    n.TerritoryID,
					Name:           n.Name,
					DistanceMeters: n.DistanceMeters,
					Direction:      n.Direction,
				},
			})
		}
	}

	return nearby
}

// Reset clears all armed alerts, for use when tracking restarts.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.alerted = make(map[string]bool)
	m.mu.Unlock()
}
