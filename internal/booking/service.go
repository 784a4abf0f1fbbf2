// Package booking validates and commits appointments against live
// availability and drives the appointment status machine. Every write path
// (public form, staff quick-add, assistant tools) goes through Service.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var bookingTracer = otel.Tracer("clinic.internal.booking")

// AuditLogger records appointment lifecycle events. Optional.
type AuditLogger interface {
	LogAppointmentCreated(ctx context.Context, appt appointments.Appointment) error
	LogStatusChanged(ctx context.Context, appt appointments.Appointment, from appointments.Status) error
}

// Stores groups the authoritative stores the service reads and writes.
type Stores struct {
	Doctors      doctors.Repository
	Schedule     schedule.Repository
	Blocked      blocked.Repository
	Appointments appointments.Repository
	Patients     patients.Repository
}

// Config bounds store calls and the public booking window.
type Config struct {
	StoreTimeout time.Duration
	Location     *time.Location
	// HorizonDays caps how far ahead slots are listed. Zero disables the cap.
	HorizonDays int
}

// Request is a booking attempt. Exactly one of PatientID and NewPatient is set.
// The appointment is filed under the doctor's clinic.
type Request struct {
	DoctorID        string
	PatientID       string
	NewPatient      *patients.NewPatient
	Start           time.Time
	DurationMinutes int
	Notes           string
	Source          appointments.Source
}

// Service is the booking validator/committer.
type Service struct {
	stores  Stores
	cfg     Config
	locks   *keyedMutex
	audit   AuditLogger
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewService constructs a booking service.
func NewService(stores Stores, cfg Config, logger *logging.Logger) *Service {
	if stores.Doctors == nil || stores.Schedule == nil || stores.Blocked == nil || stores.Appointments == nil || stores.Patients == nil {
		panic("booking: all stores are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		stores: stores,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// WithAudit records created appointments and status changes.
func (s *Service) WithAudit(audit AuditLogger) *Service {
	s.audit = audit
	return s
}

// WithMetrics records booking outcomes and slot generation latency.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// Location is the clinic's civil timezone.
func (s *Service) Location() *time.Location { return s.cfg.Location }

// Slots lists the doctor's slots for the civil dates [from, to], read fresh
// from the stores. Slots before now are omitted.
func (s *Service) Slots(ctx context.Context, doctorID string, from, to time.Time) ([]slots.Slot, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.slots")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor_id", doctorID))

	if _, err := s.bookableDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	started := time.Now()
	now := s.now()
	from, to = s.clampRange(from, to, now)
	if to.Before(from) {
		return []slots.Slot{}, nil
	}

	rangeStart := startOfDay(from, s.cfg.Location)
	rangeEnd := startOfDay(to, s.cfg.Location).AddDate(0, 0, 1)
	in, err := s.loadInput(ctx, doctorID, rangeStart, rangeEnd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	in.From, in.To, in.Now = from, to, now

	out := slices.Collect(slots.Generate(in))
	available := 0
	for _, sl := range out {
		if sl.Available {
			available++
		}
	}
	s.metrics.ObserveSlotGeneration("service", time.Since(started), available, len(out)-available)
	if out == nil {
		out = []slots.Slot{}
	}
	return out, nil
}

// Book re-derives availability for exactly the requested window and, if it is
// free, reserves it. Concurrent bookings of the same doctor and day are
// serialized in process, and the store re-checks overlap atomically.
func (s *Service) Book(ctx context.Context, req Request) (appointments.Appointment, error) {
	if req.Source == "" {
		req.Source = appointments.SourcePublic
	}
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", req.DoctorID),
		attribute.String("clinic.booking_source", string(req.Source)),
	)

	appt, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBooking(string(req.Source), string(apperr.KindOf(err)))
		if apperr.IsKind(err, apperr.KindSlotUnavailable) {
			s.logger.Info("booking rejected, slot unavailable", "doctor_id", req.DoctorID, "start", req.Start, "source", req.Source)
		} else {
			s.logger.Warn("booking failed", "doctor_id", req.DoctorID, "start", req.Start, "source", req.Source, "error", err)
		}
		return appointments.Appointment{}, err
	}
	s.metrics.ObserveBooking(string(req.Source), "created")
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))
	if s.audit != nil {
		if err := s.audit.LogAppointmentCreated(ctx, appt); err != nil {
			s.logger.Warn("failed to audit appointment creation", "appointment_id", appt.ID, "error", err)
		}
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID,
		"start", appt.StartsAt, "status", appt.Status, "source", appt.Source)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req Request) (appointments.Appointment, error) {
	if err := validateRequest(req); err != nil {
		return appointments.Appointment{}, err
	}
	doctor, err := s.bookableDoctor(ctx, req.DoctorID)
	if err != nil {
		return appointments.Appointment{}, err
	}
	start := req.Start.In(s.cfg.Location)
	dayStart := startOfDay(start, s.cfg.Location)

	unlock := s.locks.Lock(req.DoctorID + "|" + dayStart.Format(time.DateOnly))
	defer unlock()

	in, err := s.loadInput(ctx, req.DoctorID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return appointments.Appointment{}, err
	}
	in.Now = s.now()

	minutes := req.DurationMinutes
	if minutes == 0 {
		rule, ok := in.Week.Rule(start.Weekday())
		if !ok {
			return appointments.Appointment{}, unavailable(slots.Slot{Start: start, Reason: slots.ReasonOutsideHours})
		}
		minutes = rule.SlotMinutes
	}
	if slot := slots.Check(in, start, minutes); !slot.Available {
		return appointments.Appointment{}, unavailable(slot)
	}

	patientID, err := s.resolvePatient(ctx, req)
	if err != nil {
		return appointments.Appointment{}, err
	}

	appt := appointments.Appointment{
		ClinicID:        doctor.ClinicID,
		DoctorID:        req.DoctorID,
		PatientID:       patientID,
		StartsAt:        start,
		DurationMinutes: minutes,
		Status:          req.Source.InitialStatus(),
		Notes:           strings.TrimSpace(req.Notes),
		Source:          req.Source,
	}

	// Writes are never retried: a timeout here does not prove the row is absent.
	wctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	created, err := s.stores.Appointments.Reserve(wctx, appt, func(overlapping []appointments.Appointment) error {
		// Blocked periods are read again here, after the store has locked the doctor.
		periods, err := s.stores.Blocked.List(wctx, req.DoctorID, start, appt.EndsAt())
		if err != nil {
			return storeError("booking.blocked_recheck", err)
		}
		recheck := in
		recheck.Appointments = overlapping
		recheck.Blocked = blocked.NewCalendar(periods)
		recheck.Now = s.now()
		if slot := slots.Check(recheck, start, minutes); !slot.Available {
			return unavailable(slot)
		}
		return nil
	})
	if err != nil {
		return appointments.Appointment{}, storeError("booking.reserve", err)
	}
	return created, nil
}

func (s *Service) resolvePatient(ctx context.Context, req Request) (string, error) {
	if req.PatientID != "" {
		p, err := readWithRetry(ctx, s, "booking.patient", func(ctx context.Context) (patients.Patient, error) {
			return s.stores.Patients.Get(ctx, req.PatientID)
		})
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	p, created, err := patients.FindOrCreate(wctx, s.stores.Patients, *req.NewPatient)
	if err != nil {
		return "", storeError("booking.patient", err)
	}
	if created {
		s.logger.Info("patient registered", "patient_id", p.ID)
	}
	return p.ID, nil
}

// Transition moves an appointment along the status machine. The update is a
// compare-and-set on the status read here, so a concurrent change surfaces as
// an invalid transition rather than being overwritten.
func (s *Service) Transition(ctx context.Context, id string, to appointments.Status) (appointments.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id), attribute.String("clinic.status_to", string(to)))

	if !to.Valid() {
		return appointments.Appointment{}, apperr.New(apperr.KindInvalidInput, "booking.transition", "unknown status "+string(to))
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return appointments.Appointment{}, err
	}
	if !current.Status.CanTransition(to) {
		s.metrics.ObserveTransition(string(current.Status), string(to), "rejected")
		return appointments.Appointment{}, appointments.InvalidTransition(current.Status, to)
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	updated, err := s.stores.Appointments.UpdateStatus(wctx, id, current.Status, to)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveTransition(string(current.Status), string(to), string(apperr.KindOf(err)))
		return appointments.Appointment{}, storeError("booking.transition", err)
	}
	s.metrics.ObserveTransition(string(current.Status), string(to), "ok")
	if s.audit != nil {
		if err := s.audit.LogStatusChanged(ctx, updated, current.Status); err != nil {
			s.logger.Warn("failed to audit status change", "appointment_id", id, "error", err)
		}
	}
	s.logger.Info("appointment status changed", "appointment_id", id, "from", current.Status, "to", to)
	return updated, nil
}

// Cancel is Transition to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (appointments.Appointment, error) {
	return s.Transition(ctx, id, appointments.StatusCancelled)
}

// Doctor loads one doctor of the directory, active or not.
func (s *Service) Doctor(ctx context.Context, id string) (doctors.Doctor, error) {
	return readWithRetry(ctx, s, "booking.doctor", func(ctx context.Context) (doctors.Doctor, error) {
		return s.stores.Doctors.Get(ctx, id)
	})
}

// bookableDoctor rejects unknown and inactive doctors as not found.
func (s *Service) bookableDoctor(ctx context.Context, id string) (doctors.Doctor, error) {
	if strings.TrimSpace(id) == "" {
		return doctors.Doctor{}, apperr.New(apperr.KindInvalidInput, "booking.doctor", "doctor is required").WithField("field", "doctor_id")
	}
	d, err := s.Doctor(ctx, id)
	if err != nil {
		return doctors.Doctor{}, err
	}
	if !d.Active {
		return doctors.Doctor{}, apperr.New(apperr.KindNotFound, "booking.doctor", "doctor is not accepting bookings").WithField("doctor_id", id)
	}
	return d, nil
}

// Get loads one appointment.
func (s *Service) Get(ctx context.Context, id string) (appointments.Appointment, error) {
	return readWithRetry(ctx, s, "booking.get", func(ctx context.Context) (appointments.Appointment, error) {
		return s.stores.Appointments.Get(ctx, id)
	})
}

// AppointmentsOn lists the doctor's appointments starting on date's civil day.
func (s *Service) AppointmentsOn(ctx context.Context, doctorID string, date time.Time) ([]appointments.Appointment, error) {
	dayStart := startOfDay(date, s.cfg.Location)
	list, err := readWithRetry(ctx, s, "booking.appointments_on", func(ctx context.Context) ([]appointments.Appointment, error) {
		return s.stores.Appointments.ListForDoctor(ctx, doctorID, dayStart, dayStart.AddDate(0, 0, 1))
	})
	if err != nil {
		return nil, err
	}
	return startingOn(list, dayStart), nil
}

// ClinicAppointmentsOn lists every appointment of the clinic on date's civil day.
func (s *Service) ClinicAppointmentsOn(ctx context.Context, clinicID string, date time.Time) ([]appointments.Appointment, error) {
	dayStart := startOfDay(date, s.cfg.Location)
	list, err := readWithRetry(ctx, s, "booking.clinic_appointments_on", func(ctx context.Context) ([]appointments.Appointment, error) {
		return s.stores.Appointments.ListForClinic(ctx, clinicID, dayStart, dayStart.AddDate(0, 0, 1))
	})
	if err != nil {
		return nil, err
	}
	return startingOn(list, dayStart), nil
}

// SearchPatients looks patients up by name or phone.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]patients.Patient, error) {
	return readWithRetry(ctx, s, "booking.search_patients", func(ctx context.Context) ([]patients.Patient, error) {
		return s.stores.Patients.Search(ctx, query, patients.SearchLimit)
	})
}

// Patient loads one patient.
func (s *Service) Patient(ctx context.Context, id string) (patients.Patient, error) {
	return readWithRetry(ctx, s, "booking.patient", func(ctx context.Context) (patients.Patient, error) {
		return s.stores.Patients.Get(ctx, id)
	})
}

func (s *Service) loadInput(ctx context.Context, doctorID string, from, to time.Time) (slots.Input, error) {
	rules, err := readWithRetry(ctx, s, "booking.rules", func(ctx context.Context) ([]schedule.WeeklyRule, error) {
		return s.stores.Schedule.ListRules(ctx, doctorID)
	})
	if err != nil {
		return slots.Input{}, err
	}
	week, err := schedule.NewWeek(doctorID, rules)
	if err != nil {
		return slots.Input{}, err
	}
	periods, err := readWithRetry(ctx, s, "booking.blocked", func(ctx context.Context) ([]blocked.Period, error) {
		return s.stores.Blocked.List(ctx, doctorID, from, to)
	})
	if err != nil {
		return slots.Input{}, err
	}
	appts, err := readWithRetry(ctx, s, "booking.appointments", func(ctx context.Context) ([]appointments.Appointment, error) {
		return s.stores.Appointments.ListForDoctor(ctx, doctorID, from, to)
	})
	if err != nil {
		return slots.Input{}, err
	}
	return slots.Input{
		DoctorID:     doctorID,
		Week:         week,
		Blocked:      blocked.NewCalendar(periods),
		Appointments: appts,
		Location:     s.cfg.Location,
	}, nil
}

func (s *Service) clampRange(from, to, now time.Time) (time.Time, time.Time) {
	today := startOfDay(now, s.cfg.Location)
	if from.Before(today) {
		from = today
	}
	if s.cfg.HorizonDays > 0 {
		limit := today.AddDate(0, 0, s.cfg.HorizonDays)
		if to.After(limit) {
			to = limit
		}
	}
	return from, to
}

// readWithRetry bounds fn by the store timeout and retries it once when it
// fails transiently. Only idempotent reads go through here.
func readWithRetry[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		v, err := fn(cctx)
		cancel()
		if err == nil {
			return v, nil
		}
		err = storeError(op, err)
		if attempt >= 2 || !apperr.IsKind(err, apperr.KindTransient) || ctx.Err() != nil {
			return zero, err
		}
		s.logger.Warn("transient store failure, retrying read", "op", op, "error", err)
	}
}

// storeError turns deadline and cancellation failures into transient errors
// and leaves classified errors alone.
func storeError(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unavailable(slot slots.Slot) error {
	return apperr.New(apperr.KindSlotUnavailable, "booking.book", "requested slot is no longer available").
		WithField("reason", string(slot.Reason)).
		WithField("start", slot.Start.Format(time.RFC3339))
}

func validateRequest(req Request) error {
	invalid := func(field, msg string) error {
		return apperr.New(apperr.KindInvalidInput, "booking.validate", msg).WithField("field", field)
	}
	switch {
	case strings.TrimSpace(req.DoctorID) == "":
		return invalid("doctor_id", "doctor is required")
	case req.PatientID == "" && req.NewPatient == nil:
		return invalid("patient", "patient id or patient details are required")
	case req.PatientID != "" && req.NewPatient != nil:
		return invalid("patient", "give either a patient id or patient details, not both")
	case req.Start.IsZero():
		return invalid("start", "start time is required")
	case req.DurationMinutes < 0:
		return invalid("duration_minutes", "duration must not be negative")
	}
	switch req.Source {
	case appointments.SourcePublic, appointments.SourceStaff, appointments.SourceAssistant:
	default:
		return invalid("source", "unknown booking source "+string(req.Source))
	}
	if req.NewPatient != nil {
		return req.NewPatient.Validate()
	}
	return nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func startingOn(list []appointments.Appointment, dayStart time.Time) []appointments.Appointment {
	dayEnd := dayStart.AddDate(0, 0, 1)
	out := make([]appointments.Appointment, 0, len(list))
	for _, a := range list {
		if !a.StartsAt.Before(dayStart) && a.StartsAt.Before(dayEnd) {
			out = append(out, a)
		}
	}
	return out
}
