// Package doctors is the clinic directory: the clinics, the doctors who work
// in them, and whether each doctor currently takes bookings.
package doctors

import (
	"strings"
	"time"
	"unicode"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// DefaultConsultationMinutes applies when a doctor profile leaves the length unset.
const DefaultConsultationMinutes = 30

var (
	// ErrNotFound is returned when no doctor matches.
	ErrNotFound = apperr.New(apperr.KindNotFound, "", "doctor not found")
	// ErrClinicNotFound is returned when no clinic matches.
	ErrClinicNotFound = apperr.New(apperr.KindNotFound, "", "clinic not found")
	// ErrSlugTaken is returned when another doctor already uses the slug.
	ErrSlugTaken = apperr.New(apperr.KindInvalidInput, "", "slug is already used by another doctor").WithField("field", "slug")
)

// Clinic is a practice with one or more doctors.
type Clinic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a clinic needs before it is stored.
func (c Clinic) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return invalid("id", "clinic id is required")
	case strings.TrimSpace(c.Name) == "":
		return invalid("name", "clinic name is required")
	}
	return nil
}

// Doctor belongs to exactly one clinic. Appointments of the doctor are filed
// under that clinic.
type Doctor struct {
	ID                  string    `json:"id"`
	ClinicID            string    `json:"clinic_id"`
	Slug                string    `json:"slug"`
	Title               string    `json:"title,omitempty"`
	FullName            string    `json:"full_name"`
	Specialty           string    `json:"specialty,omitempty"`
	Bio                 string    `json:"bio,omitempty"`
	ConsultationMinutes int       `json:"consultation_duration_minutes"`
	Active              bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Normalize fills the slug and consultation length when unset.
func (d Doctor) Normalize() Doctor {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Slug = strings.TrimSpace(d.Slug)
	if d.Slug == "" {
		d.Slug = Slugify(d.FullName)
	}
	if d.ConsultationMinutes == 0 {
		d.ConsultationMinutes = DefaultConsultationMinutes
	}
	return d
}

// Validate checks a normalized doctor.
func (d Doctor) Validate() error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return invalid("id", "doctor id is required")
	case strings.TrimSpace(d.ClinicID) == "":
		return invalid("clinic_id", "doctor must belong to a clinic")
	case d.FullName == "":
		return invalid("full_name", "full name is required")
	case d.Slug == "" || Slugify(d.Slug) != d.Slug:
		return invalid("slug", "slug must be lowercase letters, digits and dashes")
	case d.ConsultationMinutes < 0:
		return invalid("consultation_duration_minutes", "consultation length must be positive")
	}
	return nil
}

// Profile is the public view of a doctor and the clinic they work in.
type Profile struct {
	Doctor Doctor `json:"doctor"`
	Clinic Clinic `json:"clinic"`
}

// Slugify lowercases name and joins its letter and digit runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

func invalid(field, msg string) error {
	return apperr.New(apperr.KindInvalidInput, "doctors.validate", msg).WithField("field", field)
}
