// Package tenancy carries the authenticated staff member's clinic and doctor
// scope through request contexts.
package tenancy

import "context"

type ctxKey string

const staffKey ctxKey = "clinic.staff"

// Staff is the scope a verified staff token grants.
type Staff struct {
	UserID   string
	ClinicID string
	// DoctorID is empty for front-desk users who act for every doctor of the clinic.
	DoctorID string
	Role     string
}

// WithStaff stores the staff scope in context.
func WithStaff(ctx context.Context, staff Staff) context.Context {
	return context.WithValue(ctx, staffKey, staff)
}

// StaffFromContext extracts the staff scope if present.
func StaffFromContext(ctx context.Context) (Staff, bool) {
	staff, ok := ctx.Value(staffKey).(Staff)
	return staff, ok
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	staff, ok := StaffFromContext(ctx)
	return staff.ClinicID, ok && staff.ClinicID != ""
}

// CanActForDoctor reports whether the staff scope covers the doctor working in
// doctorClinicID. Clinic-wide users cover every doctor of their own clinic.
func (s Staff) CanActForDoctor(doctorID, doctorClinicID string) bool {
	if s.ClinicID == "" || s.ClinicID != doctorClinicID {
		return false
	}
	return s.DoctorID == "" || s.DoctorID == doctorID
}
