// Package appointments persists booked appointments and enforces the status
// state machine. Appointments are never deleted; cancellation is a status.
package appointments

import (
	"time"
)

// Source identifies who initiated a booking.
type Source string

const (
	SourcePublic    Source = "public"
	SourceStaff     Source = "staff"
	SourceAssistant Source = "assistant"
)

// InitialStatus is pending for self-service and assistant bookings and
// confirmed for staff quick-add.
func (s Source) InitialStatus() Status {
	if s == SourceStaff {
		return StatusConfirmed
	}
	return StatusPending
}

// Appointment is one booked visit.
type Appointment struct {
	ID              string    `json:"id"`
	ClinicID        string    `json:"clinic_id,omitempty"`
	DoctorID        string    `json:"doctor_id"`
	PatientID       string    `json:"patient_id"`
	StartsAt        time.Time `json:"datetime"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	OTPVerified     bool      `json:"otp_verified"`
	Source          Source    `json:"source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EndsAt is StartsAt + DurationMinutes.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps applies the half-open overlap test against [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndsAt()) && end.After(a.StartsAt)
}

// Blocks reports whether the appointment occupies [start, end).
// Cancelled appointments never block.
func (a Appointment) Blocks(start, end time.Time) bool {
	return a.Status.OccupiesSlot() && a.Overlaps(start, end)
}

// PatientConfirmed is true once the patient verified the one-time code,
// independent of status.
func (a Appointment) PatientConfirmed() bool {
	return a.OTPVerified
}
