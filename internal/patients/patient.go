// Package patients is the clinic's patient directory.
package patients

import (
	"strings"
	"time"
	"unicode"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// SearchLimit caps search results.
const SearchLimit = 5

// ErrNotFound is returned when no patient matches.
var ErrNotFound = apperr.New(apperr.KindNotFound, "", "patient not found")

// Patient is a person who books appointments.
type Patient struct {
	ID          string     `json:"id"`
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewPatient is the input for registering a patient inline with a booking.
type NewPatient struct {
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Validate requires a name; phone is normalized when present.
func (n NewPatient) Validate() error {
	if strings.TrimSpace(n.FullName) == "" {
		return apperr.New(apperr.KindInvalidInput, "patients.validate", "full name is required").WithField("field", "full_name")
	}
	if n.Phone != "" && len(NormalizePhone(n.Phone)) < 6 {
		return apperr.New(apperr.KindInvalidInput, "patients.validate", "phone number is too short").WithField("field", "phone")
	}
	return nil
}

// NormalizePhone keeps a leading + and the digits.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone hides all but the last two digits.
func MaskPhone(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) <= 2 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-2) + digits[len(digits)-2:]
}
