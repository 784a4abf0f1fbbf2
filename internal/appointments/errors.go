package appointments

import (
	"github.com/wolfman30/clinic-booking/internal/apperr"
)

var (
	// ErrNotFound is returned when the appointment does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "", "appointment not found")
	// ErrSlotConflict is returned when the requested window is already taken.
	ErrSlotConflict = apperr.New(apperr.KindSlotUnavailable, "", "requested slot is no longer available")
)

// InvalidTransition builds the error for a rejected status change. Fields carry
// both states so the caller can explain the no-op.
func InvalidTransition(from, to Status) error {
	return apperr.New(apperr.KindInvalidTransition, "appointments.transition",
		"cannot move appointment from "+from.String()+" to "+to.String()).
		WithField("from", from.String()).
		WithField("to", to.String())
}
