package blocked

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists blocked periods.
type Repository interface {
	// List returns the doctor's periods overlapping [from, to), ordered by start.
	List(ctx context.Context, doctorID string, from, to time.Time) ([]Period, error)
	Create(ctx context.Context, p Period) (Period, error)
	Delete(ctx context.Context, doctorID, id string) error
	// DeleteExpired removes periods that ended before the cutoff.
	DeleteExpired(ctx context.Context, doctorID string, before time.Time) (int64, error)
}

// InMemoryRepository keeps periods in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	periods map[string]Period
	now     func() time.Time
}

// NewInMemoryRepository creates an empty store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{periods: make(map[string]Period), now: time.Now}
}

func (r *InMemoryRepository) List(ctx context.Context, doctorID string, from, to time.Time) ([]Period, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Period
	for _, p := range r.periods {
		if p.DoctorID == doctorID && p.Overlaps(from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, p Period) (Period, error) {
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.periods[p.ID] = p
	return p, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, doctorID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.periods[id]
	if !ok || p.DoctorID != doctorID {
		return ErrNotFound
	}
	delete(r.periods, id)
	return nil
}

func (r *InMemoryRepository) DeleteExpired(ctx context.Context, doctorID string, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, p := range r.periods {
		if p.DoctorID == doctorID && !p.End.After(before) {
			delete(r.periods, id)
			n++
		}
	}
	return n, nil
}
