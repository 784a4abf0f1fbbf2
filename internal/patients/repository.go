package patients

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists patients.
type Repository interface {
	// Search matches query against name or phone, case-insensitively.
	Search(ctx context.Context, query string, limit int) ([]Patient, error)
	Get(ctx context.Context, id string) (Patient, error)
	FindByPhone(ctx context.Context, phone string) (Patient, error)
	FindByName(ctx context.Context, name string) (Patient, error)
	Create(ctx context.Context, in NewPatient) (Patient, error)
}

// FindOrCreate resolves in to an existing patient by phone, then by name,
// creating one when neither matches.
func FindOrCreate(ctx context.Context, repo Repository, in NewPatient) (Patient, bool, error) {
	if err := in.Validate(); err != nil {
		return Patient{}, false, err
	}
	if phone := NormalizePhone(in.Phone); phone != "" {
		p, err := repo.FindByPhone(ctx, phone)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Patient{}, false, err
		}
	}
	p, err := repo.FindByName(ctx, strings.TrimSpace(in.FullName))
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Patient{}, false, err
	}
	created, err := repo.Create(ctx, in)
	if err != nil {
		return Patient{}, false, err
	}
	return created, true, nil
}

// InMemoryRepository keeps patients in process memory.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]Patient
}

// NewInMemoryRepository creates an empty directory.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{patients: make(map[string]Patient)}
}

func (r *InMemoryRepository) Search(ctx context.Context, query string, limit int) ([]Patient, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if limit <= 0 || limit > SearchLimit {
		limit = SearchLimit
	}
	out := r.filter(func(p Patient) bool {
		return q != "" && (strings.Contains(strings.ToLower(p.FullName), q) || strings.Contains(p.Phone, q))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) FindByPhone(ctx context.Context, phone string) (Patient, error) {
	phone = NormalizePhone(phone)
	out := r.filter(func(p Patient) bool { return phone != "" && p.Phone == phone })
	if len(out) == 0 {
		return Patient{}, ErrNotFound
	}
	return out[0], nil
}

func (r *InMemoryRepository) FindByName(ctx context.Context, name string) (Patient, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	out := r.filter(func(p Patient) bool { return name != "" && strings.Contains(strings.ToLower(p.FullName), name) })
	if len(out) == 0 {
		return Patient{}, ErrNotFound
	}
	return out[0], nil
}

func (r *InMemoryRepository) Create(ctx context.Context, in NewPatient) (Patient, error) {
	if err := in.Validate(); err != nil {
		return Patient{}, err
	}
	now := time.Now().UTC()
	p := Patient{
		ID:          uuid.NewString(),
		FullName:    strings.TrimSpace(in.FullName),
		Phone:       NormalizePhone(in.Phone),
		Email:       strings.TrimSpace(in.Email),
		DateOfBirth: in.DateOfBirth,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return p, nil
}

func (r *InMemoryRepository) filter(keep func(Patient) bool) []Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Patient
	for _, p := range r.patients {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID)
	})
	return out
}
