package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/otp"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const defaultSlotDays = 7

// OTPService issues and checks patient confirmation codes.
type OTPService interface {
	Issue(ctx context.Context, appt appointments.Appointment) (otp.Delivery, error)
	Resend(ctx context.Context, appointmentID string) (otp.Delivery, error)
	Verify(ctx context.Context, appointmentID, code string) (bool, error)
}

// Handler exposes booking over HTTP for the public site and the staff portal.
type Handler struct {
	svc    *Service
	otp    OTPService
	logger *logging.Logger
}

// NewHandler creates a booking handler. otpSvc may be nil, in which case no
// confirmation code is sent.
func NewHandler(svc *Service, otpSvc OTPService, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("booking: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, otp: otpSvc, logger: logger}
}

// BookingPayload is the body of POST /bookings and POST /portal/appointments.
// The start is either Start (RFC3339) or Date + Time in clinic local time.
// The clinic is always the doctor's; a clinic_id in the body is ignored.
type BookingPayload struct {
	DoctorID        string               `json:"doctor_id"`
	PatientID       string               `json:"patient_id,omitempty"`
	Patient         *patients.NewPatient `json:"patient,omitempty"`
	Date            string               `json:"date,omitempty"`
	Time            string               `json:"time,omitempty"`
	Start           *time.Time           `json:"start,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

// BookingResponse is returned by POST /bookings.
type BookingResponse struct {
	Appointment appointments.Appointment `json:"appointment"`
	OTP         *otp.Delivery            `json:"otp,omitempty"`
	OTPDelivery string                   `json:"otp_delivery"`
	OTPError    *apperr.Body             `json:"otp_error,omitempty"`
}

// GetSlots handles GET /doctors/{doctorID}/slots?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	loc := h.svc.Location()
	from := startOfDay(time.Now(), loc)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "from must be YYYY-MM-DD").WithField("field", "from"))
			return
		}
		from = parsed
	}
	to := from.AddDate(0, 0, defaultSlotDays-1)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "to must be YYYY-MM-DD").WithField("field", "to"))
			return
		}
		to = parsed
	}
	if to.Before(from) {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "to must not be before from"))
		return
	}

	list, err := h.svc.Slots(r.Context(), doctorID, from, to)
	if err != nil {
		h.logger.Error("failed to generate slots", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	days := slots.ByDate(slices.Values(list))
	if days == nil {
		days = []slots.Day{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "days": days})
}

// CreateBooking handles POST /bookings (public self-service). The appointment
// is created pending and a confirmation code is sent. A failed delivery still
// returns 201 with otp_delivery "failed" so the patient can ask for a resend.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var payload BookingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	if payload.Patient == nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "patient details are required").WithField("field", "patient"))
		return
	}
	payload.PatientID = ""
	req, err := h.toRequest(payload, appointments.SourcePublic)
	if err != nil {
		apperr.Respond(w, err)
		return
	}

	appt, err := h.svc.Book(r.Context(), req)
	if err != nil {
		apperr.Respond(w, err)
		return
	}

	resp := BookingResponse{Appointment: appt, OTPDelivery: "skipped"}
	if h.otp != nil {
		delivery, err := h.otp.Issue(r.Context(), appt)
		if err != nil {
			body := apperr.BodyOf(err)
			resp.OTPDelivery = "failed"
			resp.OTPError = &body
		} else {
			resp.OTP = &delivery
			resp.OTPDelivery = "sent"
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// VerifyBooking handles POST /bookings/{appointmentID}/verify
func (h *Handler) VerifyBooking(w http.ResponseWriter, r *http.Request) {
	if h.otp == nil {
		apperr.Respond(w, apperr.New(apperr.KindNotFound, "", "verification is not enabled"))
		return
	}
	id := chi.URLParam(r, "appointmentID")
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Code) == "" {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "code is required").WithField("field", "code"))
		return
	}
	ok, err := h.otp.Verify(r.Context(), id, strings.TrimSpace(body.Code))
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment_id": id, "verified": ok})
}

// ResendCode handles POST /bookings/{appointmentID}/resend
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	if h.otp == nil {
		apperr.Respond(w, apperr.New(apperr.KindNotFound, "", "verification is not enabled"))
		return
	}
	delivery, err := h.otp.Resend(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, delivery)
}

// QuickAdd handles POST /portal/appointments. Staff bookings are confirmed
// immediately and scoped to the caller's clinic.
func (h *Handler) QuickAdd(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	var payload BookingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	if payload.DoctorID == "" {
		payload.DoctorID = staff.DoctorID
	}
	if payload.DoctorID == "" {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "doctor_id is required").WithField("field", "doctor_id"))
		return
	}
	if !h.authorizeDoctor(w, r, staff, payload.DoctorID) {
		return
	}
	req, err := h.toRequest(payload, appointments.SourceStaff)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	appt, err := h.svc.Book(r.Context(), req)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /portal/appointments?doctor_id=&date=YYYY-MM-DD
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	loc := h.svc.Location()
	date := startOfDay(time.Now(), loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "date must be YYYY-MM-DD").WithField("field", "date"))
			return
		}
		date = parsed
	}

	doctorID := r.URL.Query().Get("doctor_id")
	if doctorID == "" {
		doctorID = staff.DoctorID
	}
	if doctorID != "" && !h.authorizeDoctor(w, r, staff, doctorID) {
		return
	}

	var (
		list []appointments.Appointment
		err  error
	)
	if doctorID != "" {
		list, err = h.svc.AppointmentsOn(r.Context(), doctorID, date)
	} else {
		list, err = h.svc.ClinicAppointmentsOn(r.Context(), staff.ClinicID, date)
	}
	if err != nil {
		h.logger.Error("failed to list appointments", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format(time.DateOnly), "appointments": list})
}

// UpdateStatus handles PATCH /portal/appointments/{appointmentID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "appointmentID")
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	to, err := appointments.ParseStatus(body.Status)
	if err != nil {
		apperr.Respond(w, apperr.Wrap(apperr.KindInvalidInput, "", err).WithField("field", "status"))
		return
	}

	current, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	if !staff.CanActForDoctor(current.DoctorID, current.ClinicID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.svc.Transition(r.Context(), id, to)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// authorizeDoctor writes 404 for an unknown doctor and 403 when the doctor
// belongs to another clinic or the token is bound to another doctor.
func (h *Handler) authorizeDoctor(w http.ResponseWriter, r *http.Request, staff tenancy.Staff, doctorID string) bool {
	doctor, err := h.svc.Doctor(r.Context(), doctorID)
	if err != nil {
		apperr.Respond(w, err)
		return false
	}
	if !staff.CanActForDoctor(doctor.ID, doctor.ClinicID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) toRequest(p BookingPayload, source appointments.Source) (Request, error) {
	start, err := parseStart(p, h.svc.Location())
	if err != nil {
		return Request{}, err
	}
	return Request{
		DoctorID:        p.DoctorID,
		PatientID:       p.PatientID,
		NewPatient:      p.Patient,
		Start:           start,
		DurationMinutes: p.DurationMinutes,
		Notes:           p.Notes,
		Source:          source,
	}, nil
}

// parseStart reads the slot start as clinic civil time.
func parseStart(p BookingPayload, loc *time.Location) (time.Time, error) {
	if p.Start != nil {
		return p.Start.In(loc), nil
	}
	if p.Date == "" || p.Time == "" {
		return time.Time{}, apperr.New(apperr.KindInvalidInput, "", "date and time are required").WithField("field", "start")
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", p.Date+" "+p.Time, loc)
	if err != nil {
		return time.Time{}, apperr.New(apperr.KindInvalidInput, "", "date must be YYYY-MM-DD and time HH:MM").WithField("field", "start")
	}
	return start, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
