package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository persists weekly rules. SaveRule validates before writing so a
// malformed rule is never stored.
type Repository interface {
	ListRules(ctx context.Context, doctorID string) ([]WeeklyRule, error)
	SaveRule(ctx context.Context, rule WeeklyRule) (WeeklyRule, error)
}

// InMemoryRepository keeps rules in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	rules map[string]map[int]WeeklyRule
}

// NewInMemoryRepository creates an empty in-memory rule store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rules: make(map[string]map[int]WeeklyRule)}
}

// ListRules returns the doctor's rules ordered by weekday.
func (r *InMemoryRepository) ListRules(ctx context.Context, doctorID string) ([]WeeklyRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WeeklyRule, 0, len(r.rules[doctorID]))
	for _, rule := range r.rules[doctorID] {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

// SaveRule upserts the rule for its (doctor, weekday).
func (r *InMemoryRepository) SaveRule(ctx context.Context, rule WeeklyRule) (WeeklyRule, error) {
	if err := rule.Validate(); err != nil {
		return WeeklyRule{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	days, ok := r.rules[rule.DoctorID]
	if !ok {
		days = make(map[int]WeeklyRule)
		r.rules[rule.DoctorID] = days
	}
	if existing, ok := days[int(rule.DayOfWeek)]; ok {
		rule.ID = existing.ID
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	days[int(rule.DayOfWeek)] = rule
	return rule, nil
}
