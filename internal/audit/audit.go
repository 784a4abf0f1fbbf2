// Package audit keeps an append-only trail of booking events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
)

// EventType names what happened.
type EventType string

const (
	EventAppointmentCreated EventType = "appointment.created"
	EventStatusChanged      EventType = "appointment.status_changed"
	EventOTPVerified        EventType = "appointment.otp_verified"
	EventScheduleUpdated    EventType = "schedule.updated"
)

// Event is one immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	ClinicID      string          `json:"clinic_id,omitempty"`
	DoctorID      string          `json:"doctor_id,omitempty"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Details carries event-specific fields.
type Details struct {
	Source     string `json:"source,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	StartsAt   string `json:"starts_at,omitempty"`
	DayOfWeek  string `json:"day_of_week,omitempty"`
	Active     *bool  `json:"active,omitempty"`
}

// Service writes audit events to audit_events.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates an audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent records an event. The actor defaults to the staff user on ctx.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if event.Actor == "" {
		if staff, ok := tenancy.StaffFromContext(ctx); ok {
			event.Actor = staff.UserID
		}
	}
	if event.Tags == nil {
		event.Tags = []string{}
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, clinic_id, doctor_id, appointment_id,
			actor, tags, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.ClinicID),
		nullString(event.DoctorID),
		nullString(event.AppointmentID),
		nullString(event.Actor),
		pq.Array(event.Tags),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogAppointmentCreated records a new booking.
func (s *Service) LogAppointmentCreated(ctx context.Context, appt appointments.Appointment) error {
	details, _ := json.Marshal(Details{
		Source:   string(appt.Source),
		ToStatus: string(appt.Status),
		StartsAt: appt.StartsAt.UTC().Format(time.RFC3339),
	})
	return s.LogEvent(ctx, Event{
		EventType:     EventAppointmentCreated,
		ClinicID:      appt.ClinicID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		Tags:          []string{string(appt.Source), string(appt.Status)},
		Details:       details,
	})
}

// LogStatusChanged records a lifecycle transition.
func (s *Service) LogStatusChanged(ctx context.Context, appt appointments.Appointment, from appointments.Status) error {
	details, _ := json.Marshal(Details{FromStatus: string(from), ToStatus: string(appt.Status)})
	return s.LogEvent(ctx, Event{
		EventType:     EventStatusChanged,
		ClinicID:      appt.ClinicID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		Tags:          []string{string(from), string(appt.Status)},
		Details:       details,
	})
}

// LogOTPVerified records that the patient confirmed ownership of the phone.
func (s *Service) LogOTPVerified(ctx context.Context, appt appointments.Appointment) error {
	return s.LogEvent(ctx, Event{
		EventType:     EventOTPVerified,
		ClinicID:      appt.ClinicID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		Tags:          []string{"otp"},
	})
}

// LogScheduleUpdated records a weekly rule change.
func (s *Service) LogScheduleUpdated(ctx context.Context, doctorID string, day time.Weekday, active bool) error {
	details, _ := json.Marshal(Details{DayOfWeek: day.String(), Active: &active})
	return s.LogEvent(ctx, Event{
		EventType: EventScheduleUpdated,
		DoctorID:  doctorID,
		Tags:      []string{"schedule"},
		Details:   details,
	})
}

// Filter narrows QueryEvents.
type Filter struct {
	ClinicID      string
	DoctorID      string
	AppointmentID string
	EventType     EventType
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
}

// QueryEvents returns matching events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, clinic_id, doctor_id, appointment_id,
			   actor, tags, details, created_at
		FROM audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1
	add := func(clause string, v interface{}) {
		query += fmt.Sprintf(" AND "+clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if filter.ClinicID != "" {
		add("clinic_id = $%d", filter.ClinicID)
	}
	if filter.DoctorID != "" {
		add("doctor_id = $%d", filter.DoctorID)
	}
	if filter.AppointmentID != "" {
		add("appointment_id = $%d", filter.AppointmentID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if !filter.StartTime.IsZero() {
		add("created_at >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <= $%d", filter.EndTime)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                          Event
			clinicID, doctorID, apptID sql.NullString
			actor                      sql.NullString
			details                    []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &clinicID, &doctorID, &apptID,
			&actor, pq.Array(&e.Tags), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.ClinicID = clinicID.String
		e.DoctorID = doctorID.String
		e.AppointmentID = apptID.String
		e.Actor = actor.String
		if len(details) > 0 {
			e.Details = details
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
