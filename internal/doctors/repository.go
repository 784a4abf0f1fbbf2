package doctors

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	ClinicID   string
	ActiveOnly bool
}

// Repository is the clinic directory store.
type Repository interface {
	Get(ctx context.Context, id string) (Doctor, error)
	GetBySlug(ctx context.Context, slug string) (Doctor, error)
	List(ctx context.Context, filter Filter) ([]Doctor, error)
	// Save creates or updates a doctor. An existing doctor of another clinic
	// is reported as ErrNotFound and left untouched.
	Save(ctx context.Context, d Doctor) (Doctor, error)
	GetClinic(ctx context.Context, id string) (Clinic, error)
	SaveClinic(ctx context.Context, c Clinic) (Clinic, error)
}

// Resolve looks ref up as a slug first and as an id second.
func Resolve(ctx context.Context, repo Repository, ref string) (Doctor, error) {
	d, err := repo.GetBySlug(ctx, ref)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Doctor{}, err
	}
	return repo.Get(ctx, ref)
}

// InMemoryRepository keeps the directory in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	doctors map[string]Doctor
	clinics map[string]Clinic
	now     func() time.Time
}

// NewInMemoryRepository creates an empty directory.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		doctors: make(map[string]Doctor),
		clinics: make(map[string]Clinic),
		now:     time.Now,
	}
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return Doctor{}, ErrNotFound
	}
	return d, nil
}

func (r *InMemoryRepository) GetBySlug(ctx context.Context, slug string) (Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.Slug == slug {
			return d, nil
		}
	}
	return Doctor{}, ErrNotFound
}

func (r *InMemoryRepository) List(ctx context.Context, filter Filter) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		if filter.ClinicID != "" && d.ClinicID != filter.ClinicID {
			continue
		}
		if filter.ActiveOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullName < out[j].FullName || (out[i].FullName == out[j].FullName && out[i].ID < out[j].ID)
	})
	return out, nil
}

func (r *InMemoryRepository) Save(ctx context.Context, d Doctor) (Doctor, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Doctor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clinics[d.ClinicID]; !ok {
		return Doctor{}, ErrClinicNotFound
	}
	for _, other := range r.doctors {
		if other.ID != d.ID && other.Slug == d.Slug {
			return Doctor{}, ErrSlugTaken
		}
	}
	now := r.now().UTC()
	if existing, ok := r.doctors[d.ID]; ok {
		if existing.ClinicID != d.ClinicID {
			return Doctor{}, ErrNotFound
		}
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.doctors[d.ID] = d
	return d, nil
}

func (r *InMemoryRepository) GetClinic(ctx context.Context, id string) (Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clinics[id]
	if !ok {
		return Clinic{}, ErrClinicNotFound
	}
	return c, nil
}

func (r *InMemoryRepository) SaveClinic(ctx context.Context, c Clinic) (Clinic, error) {
	if err := c.Validate(); err != nil {
		return Clinic{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if existing, ok := r.clinics[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.clinics[c.ID] = c
	return c, nil
}
