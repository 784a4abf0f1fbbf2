// Package blocked holds one-off periods (vacations, closures) that remove a
// doctor's availability regardless of the weekly schedule.
package blocked

import (
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// ErrNotFound is returned when a period does not exist for the doctor.
var ErrNotFound = errors.New("blocked: period not found")

// Period is a datetime range during which the doctor cannot be booked.
type Period struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Start     time.Time `json:"start_datetime"`
	End       time.Time `json:"end_datetime"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate requires a doctor and start < end.
func (p Period) Validate() error {
	if strings.TrimSpace(p.DoctorID) == "" {
		return apperr.New(apperr.KindInvalidInput, "blocked.validate", "doctor_id is required").WithField("field", "doctor_id")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return apperr.New(apperr.KindInvalidInput, "blocked.validate", "start and end are required").WithField("field", "start_datetime")
	}
	if !p.Start.Before(p.End) {
		return apperr.New(apperr.KindInvalidInput, "blocked.validate", "start must be before end").WithField("field", "end_datetime")
	}
	return nil
}

// Overlaps is the half-open test start < p.End && end > p.Start.
func (p Period) Overlaps(start, end time.Time) bool {
	return start.Before(p.End) && end.After(p.Start)
}
