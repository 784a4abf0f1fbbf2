package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// requireDoctorScope lets a doctor manage only their own calendar. Clinic-wide
// staff (no doctor on the token) may manage any doctor of their clinic; the
// clinic is read from the directory, never from the request.
func requireDoctorScope(directory doctors.Repository, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			doctorID := strings.TrimSpace(chi.URLParam(r, "doctorID"))
			if doctorID == "" {
				http.Error(w, `{"error":"missing doctorID"}`, http.StatusBadRequest)
				return
			}
			staff, ok := tenancy.StaffFromContext(r.Context())
			if !ok {
				http.Error(w, `{"error":"missing staff scope"}`, http.StatusUnauthorized)
				return
			}
			doctor, err := directory.Get(r.Context(), doctorID)
			if err != nil {
				apperr.Respond(w, err)
				return
			}
			if !staff.CanActForDoctor(doctor.ID, doctor.ClinicID) {
				if logger != nil {
					logger.Warn("doctor scope denied", "user_id", staff.UserID, "clinic_id", staff.ClinicID, "doctor_id", doctorID)
				}
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
