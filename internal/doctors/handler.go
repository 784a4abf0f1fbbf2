package doctors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler serves the public doctor directory and the portal's directory screens.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a directory handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("doctors: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /doctors?clinic_id= and returns active doctors only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context(), Filter{ClinicID: r.URL.Query().Get("clinic_id"), ActiveOnly: true})
	if err != nil {
		h.logger.Error("failed to list doctors", "error", err)
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": list})
}

// Profile handles GET /doctors/{doctorID}, where the path segment is a slug or an id.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	d, err := Resolve(r.Context(), h.repo, chi.URLParam(r, "doctorID"))
	if err == nil && !d.Active {
		err = ErrNotFound
	}
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	clinic, err := h.repo.GetClinic(r.Context(), d.ClinicID)
	if err != nil {
		h.logger.Error("doctor references a missing clinic", "doctor_id", d.ID, "clinic_id", d.ClinicID, "error", err)
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Profile{Doctor: d, Clinic: clinic})
}

// ListStaff handles GET /portal/directory/doctors: every doctor of the caller's clinic.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	list, err := h.repo.List(r.Context(), Filter{ClinicID: staff.ClinicID})
	if err != nil {
		h.logger.Error("failed to list clinic doctors", "clinic_id", staff.ClinicID, "error", err)
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clinic_id": staff.ClinicID, "doctors": list})
}

// SaveDoctor handles PUT /portal/directory/doctors/{doctorID}. The doctor is
// filed under the caller's clinic. A doctor token may only edit its own profile.
func (h *Handler) SaveDoctor(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "doctorID")
	if staff.DoctorID != "" && staff.DoctorID != id {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var d Doctor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	d.ID = id
	d.ClinicID = staff.ClinicID

	saved, err := h.repo.Save(r.Context(), d)
	if err != nil {
		h.logger.Warn("doctor profile rejected", "doctor_id", id, "clinic_id", staff.ClinicID, "error", err)
		apperr.Respond(w, err)
		return
	}
	h.logger.Info("doctor profile saved", "doctor_id", saved.ID, "clinic_id", saved.ClinicID, "active", saved.Active)
	writeJSON(w, http.StatusOK, saved)
}

// GetClinic handles GET /portal/directory/clinic.
func (h *Handler) GetClinic(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	clinic, err := h.repo.GetClinic(r.Context(), staff.ClinicID)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// SaveClinic handles PUT /portal/directory/clinic. Clinic-wide staff only.
func (h *Handler) SaveClinic(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	if staff.DoctorID != "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var c Clinic
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	c.ID = staff.ClinicID
	saved, err := h.repo.SaveClinic(r.Context(), c)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	h.logger.Info("clinic saved", "clinic_id", saved.ID)
	writeJSON(w, http.StatusOK, saved)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
