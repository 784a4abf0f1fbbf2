package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReserveCheck runs inside the reservation's serialization point with the
// non-cancelled appointments that overlap the requested window. A non-nil
// error aborts the insert.
type ReserveCheck func(overlapping []Appointment) error

// Repository is the authoritative appointment store.
type Repository interface {
	// ListForDoctor returns appointments of every status overlapping [from, to).
	ListForDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Appointment, error)
	// ListForClinic returns the clinic's appointments overlapping [from, to).
	ListForClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Appointment, error)
	Get(ctx context.Context, id string) (Appointment, error)
	// Reserve inserts appt after re-reading overlapping appointments and
	// running check, as one atomic step per doctor.
	Reserve(ctx context.Context, appt Appointment, check ReserveCheck) (Appointment, error)
	// UpdateStatus moves id from -> to only if the stored status is still from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (Appointment, error)
	MarkOTPVerified(ctx context.Context, id string) (Appointment, error)
}

// InMemoryRepository is a mutex-guarded store for tests and local runs.
type InMemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]Appointment
	order []string
	now   func() time.Time
}

// NewInMemoryRepository creates an empty store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byID: make(map[string]Appointment), now: time.Now}
}

func (r *InMemoryRepository) ListForDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.DoctorID == doctorID && a.Overlaps(from, to) }), nil
}

func (r *InMemoryRepository) ListForClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.ClinicID == clinicID && a.Overlaps(from, to) }), nil
}

func (r *InMemoryRepository) list(keep func(Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *InMemoryRepository) Reserve(ctx context.Context, appt Appointment, check ReserveCheck) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, end := appt.StartsAt, appt.EndsAt()
	var overlapping []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; a.DoctorID == appt.DoctorID && a.Blocks(start, end) {
			overlapping = append(overlapping, a)
		}
	}
	if check != nil {
		if err := check(overlapping); err != nil {
			return Appointment{}, err
		}
	}
	if len(overlapping) > 0 {
		return Appointment{}, ErrSlotConflict
	}
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}

	now := r.now().UTC()
	appt.ID = uuid.NewString()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.byID[appt.ID] = appt
	r.order = append(r.order, appt.ID)
	return appt, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	if a.Status != from || !from.CanTransition(to) {
		return Appointment{}, InvalidTransition(a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = r.now().UTC()
	r.byID[id] = a
	return a, nil
}

func (r *InMemoryRepository) MarkOTPVerified(ctx context.Context, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	a.OTPVerified = true
	a.UpdatedAt = r.now().UTC()
	r.byID[id] = a
	return a, nil
}
