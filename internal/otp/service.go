// Package otp issues and verifies the one-time codes that let a patient
// confirm a self-service booking. An appointment is patient-confirmed only
// once its code is verified, independent of its status.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var otpTracer = otel.Tracer("clinic.internal.otp")

const codeDigits = 6

// CodeStore holds hashed codes. RedisStore is the production implementation.
type CodeStore interface {
	Save(ctx context.Context, appointmentID string, hash []byte, ttl time.Duration) error
	Attempt(ctx context.Context, appointmentID string) ([]byte, int, error)
	Delete(ctx context.Context, appointmentID string) error
	AcquireCooldown(ctx context.Context, appointmentID string, cooldown time.Duration) (bool, time.Duration, error)
}

// AppointmentStore is the slice of the appointment repository OTP needs.
type AppointmentStore interface {
	Get(ctx context.Context, id string) (appointments.Appointment, error)
	MarkOTPVerified(ctx context.Context, id string) (appointments.Appointment, error)
}

// PatientLookup resolves the phone a code is sent to.
type PatientLookup interface {
	Get(ctx context.Context, id string) (patients.Patient, error)
}

// VerifiedRecorder is notified after a successful verification. Optional.
type VerifiedRecorder interface {
	LogOTPVerified(ctx context.Context, appt appointments.Appointment) error
}

// Config tunes code lifetime and throttling.
type Config struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	ClinicName  string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.ClinicName == "" {
		c.ClinicName = "the clinic"
	}
	return c
}

// Delivery reports where a code was sent.
type Delivery struct {
	AppointmentID string    `json:"appointment_id"`
	MaskedPhone   string    `json:"phone"`
	ExpiresAt     time.Time `json:"expires_at"`
	RetryAfter    int       `json:"retry_after_seconds"`
}

// Service issues, resends and verifies codes.
type Service struct {
	codes        CodeStore
	appointments AppointmentStore
	patients     PatientLookup
	sender       SMSSender
	audit        VerifiedRecorder
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
	cfg          Config
	now          func() time.Time
	generate     func() (string, error)
}

// NewService wires the OTP flow.
func NewService(codes CodeStore, appts AppointmentStore, pats PatientLookup, sender SMSSender, cfg Config, logger *logging.Logger) *Service {
	if codes == nil || appts == nil || pats == nil || sender == nil {
		panic("otp: store, appointments, patients and sender are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		codes:        codes,
		appointments: appts,
		patients:     pats,
		sender:       sender,
		logger:       logger,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
		generate:     generateCode,
	}
}

// WithAudit records verifications.
func (s *Service) WithAudit(audit VerifiedRecorder) *Service {
	s.audit = audit
	return s
}

// WithMetrics records sends and verifications.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// Issue sends the first code after a booking and starts the resend cooldown.
// A delivery failure returns an external_channel error; the appointment is
// left as is.
func (s *Service) Issue(ctx context.Context, appt appointments.Appointment) (Delivery, error) {
	ctx, span := otpTracer.Start(ctx, "otp.issue")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))

	if _, _, err := s.codes.AcquireCooldown(ctx, appt.ID, s.cfg.Cooldown); err != nil {
		span.RecordError(err)
		return Delivery{}, err
	}
	return s.send(ctx, appt)
}

// Resend issues a fresh code unless one was sent within the cooldown.
func (s *Service) Resend(ctx context.Context, appointmentID string) (Delivery, error) {
	ctx, span := otpTracer.Start(ctx, "otp.resend")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))

	appt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return Delivery{}, err
	}
	if appt.OTPVerified {
		return Delivery{}, apperr.New(apperr.KindInvalidInput, "otp.resend", "appointment already verified")
	}
	if appt.Status.Terminal() {
		return Delivery{}, apperr.New(apperr.KindInvalidInput, "otp.resend", "appointment is "+appt.Status.String())
	}
	ok, left, err := s.codes.AcquireCooldown(ctx, appointmentID, s.cfg.Cooldown)
	if err != nil {
		span.RecordError(err)
		return Delivery{}, err
	}
	if !ok {
		s.metrics.ObserveOTP("resend", "throttled")
		return Delivery{}, apperr.New(apperr.KindInvalidInput, "otp.resend", "please wait before requesting a new code").
			WithField("retry_after_seconds", fmt.Sprint(int(left.Round(time.Second).Seconds())))
	}
	return s.send(ctx, appt)
}

func (s *Service) send(ctx context.Context, appt appointments.Appointment) (Delivery, error) {
	patient, err := s.patients.Get(ctx, appt.PatientID)
	if err != nil {
		return Delivery{}, err
	}
	if patient.Phone == "" {
		s.metrics.ObserveOTP("send", "no_phone")
		return Delivery{}, apperr.New(apperr.KindExternalChannel, "otp.send", "patient has no phone number on file")
	}

	code, err := s.generate()
	if err != nil {
		return Delivery{}, fmt.Errorf("otp: generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Delivery{}, fmt.Errorf("otp: hash code: %w", err)
	}
	if err := s.codes.Save(ctx, appt.ID, hash, s.cfg.TTL); err != nil {
		return Delivery{}, err
	}

	body := fmt.Sprintf("Your %s confirmation code is %s. It expires in %d minutes.", s.cfg.ClinicName, code, int(s.cfg.TTL.Minutes()))
	if err := s.sender.SendSMS(ctx, patient.Phone, body); err != nil {
		s.metrics.ObserveOTP("send", "failed")
		s.logger.Warn("otp delivery failed", "appointment_id", appt.ID, "error", err)
		return Delivery{}, apperr.Wrap(apperr.KindExternalChannel, "otp.send", err).
			WithField("appointment_id", appt.ID)
	}
	s.metrics.ObserveOTP("send", "delivered")
	s.logger.Info("otp sent", "appointment_id", appt.ID, "to", patients.MaskPhone(patient.Phone))
	return Delivery{
		AppointmentID: appt.ID,
		MaskedPhone:   patients.MaskPhone(patient.Phone),
		ExpiresAt:     s.now().Add(s.cfg.TTL).UTC(),
		RetryAfter:    int(s.cfg.Cooldown.Seconds()),
	}, nil
}

// Verify checks code against the stored hash. A wrong, expired or exhausted
// code returns false. Verifying an already verified appointment returns true;
// a cancelled or finished one is rejected. The attempt is counted before the
// comparison, so parallel guesses cannot exceed MaxAttempts.
func (s *Service) Verify(ctx context.Context, appointmentID, code string) (bool, error) {
	ctx, span := otpTracer.Start(ctx, "otp.verify")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))

	appt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return false, err
	}
	if appt.OTPVerified {
		return true, nil
	}
	if appt.Status.Terminal() {
		return false, apperr.New(apperr.KindInvalidInput, "otp.verify", "appointment is "+appt.Status.String())
	}

	hash, attempts, err := s.codes.Attempt(ctx, appointmentID)
	if errors.Is(err, ErrNoCode) {
		s.metrics.ObserveOTP("verify", "expired")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if attempts > s.cfg.MaxAttempts {
		s.metrics.ObserveOTP("verify", "locked")
		return false, nil
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		s.metrics.ObserveOTP("verify", "mismatch")
		return false, nil
	}

	verified, err := s.appointments.MarkOTPVerified(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if err := s.codes.Delete(ctx, appointmentID); err != nil {
		s.logger.Warn("failed to delete used otp", "appointment_id", appointmentID, "error", err)
	}
	if s.audit != nil {
		if err := s.audit.LogOTPVerified(ctx, verified); err != nil {
			s.logger.Warn("failed to audit otp verification", "appointment_id", appointmentID, "error", err)
		}
	}
	s.metrics.ObserveOTP("verify", "ok")
	s.logger.Info("otp verified", "appointment_id", appointmentID)
	return true, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
