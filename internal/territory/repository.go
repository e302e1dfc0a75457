package territory

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTerritoryNotFound is returned when a territory is not found.
var ErrTerritoryNotFound = errors.New("territory not found")

// Repository defines methods for territory persistence. The repository is
// the single source of truth for the claimed-territory set; all reads return
// deep copies (snapshot semantics).
type Repository interface {
	Insert(t *Territory) error
	Get(id string) (*Territory, error)
	Update(t *Territory) error
	Snapshot() []Territory
	ClaimedSet() []Territory
}

// Rehydrate seeds a repository with previously persisted territories so the
// claimed set survives restarts. Returns the number inserted.
func Rehydrate(repo Repository, persisted []Territory) (int, error) {
	for i := range persisted {
		if err := repo.Insert(&persisted[i]); err != nil {
			return i, fmt.Errorf("failed to rehydrate territory %s: %w", persisted[i].ID, err)
		}
	}
	return len(persisted), nil
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu          sync.RWMutex
	territories map[string]*Territory
}

// NewInMemoryRepository creates a new in-memory territory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		territories: make(map[string]*Territory),
	}
}

// Insert adds a new territory record.
func (r *InMemoryRepository) Insert(t *Territory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Deep copy to prevent external mutation
	copied := t.Clone()
	r.territories[t.ID] = &copied
	return nil
}

// Get retrieves a territory by ID.
func (r *InMemoryRepository) Get(id string) (*Territory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.territories[id]
	if !ok {
		return nil, ErrTerritoryNotFound
	}

	copied := t.Clone()
	return &copied, nil
}

// Update replaces an existing territory record.
func (r *InMemoryRepository) Update(t *Territory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.territories[t.ID]; !ok {
		return ErrTerritoryNotFound
	}

	copied := t.Clone()
	r.territories[t.ID] = &copied
	return nil
}

// Snapshot returns copies of all territory records.
func (r *InMemoryRepository) Snapshot() []Territory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Territory, 0, len(r.territories))
	for _, t := range r.territories {
		out = append(out, t.Clone())
	}
	return out
}

// ClaimedSet returns copies of the territories currently holding or pursuing
// a claim (claimed or pending_claim). This is the set uniqueness candidates
// are validated against.
func (r *InMemoryRepository) ClaimedSet() []Territory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Territory
	for _, t := range r.territories {
		if t.Status == StatusClaimed || t.Status == StatusPendingClaim {
			out = append(out, t.Clone())
		}
	}
	return out
}
