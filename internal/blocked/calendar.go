package blocked

import "time"

// Calendar answers blocked-range queries over a snapshot of periods. It is
// read-only once built.
type Calendar struct {
	byDoctor map[string][]Period
}

// NewCalendar indexes periods by doctor.
func NewCalendar(periods []Period) *Calendar {
	c := &Calendar{byDoctor: make(map[string][]Period)}
	for _, p := range periods {
		c.byDoctor[p.DoctorID] = append(c.byDoctor[p.DoctorID], p)
	}
	return c
}

// IsBlocked reports whether [start, end) overlaps any period of the doctor.
func (c *Calendar) IsBlocked(doctorID string, start, end time.Time) bool {
	_, ok := c.Blocking(doctorID, start, end)
	return ok
}

// Blocking returns the first period overlapping [start, end).
func (c *Calendar) Blocking(doctorID string, start, end time.Time) (Period, bool) {
	if c == nil {
		return Period{}, false
	}
	for _, p := range c.byDoctor[doctorID] {
		if p.Overlaps(start, end) {
			return p, true
		}
	}
	return Period{}, false
}

// Periods returns the doctor's periods in the snapshot.
func (c *Calendar) Periods(doctorID string) []Period {
	if c == nil {
		return nil
	}
	return c.byDoctor[doctorID]
}
