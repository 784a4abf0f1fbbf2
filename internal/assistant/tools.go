package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	ToolSearchPatient     = "search_patient"
	ToolCreateAppointment = "create_appointment"
	ToolGetAppointments   = "get_appointments"
	ToolCancelAppointment = "cancel_appointment"
)

// Param is a string argument of a tool.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is handed back to the model after a call.
type ToolResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Specs lists the tools offered to the model.
func Specs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolSearchPatient,
			Description: "Rechercher un patient par nom ou numéro de téléphone",
			Params: []Param{
				{Name: "query", Description: "Nom ou téléphone du patient", Required: true},
			},
		},
		{
			Name:        ToolCreateAppointment,
			Description: "Créer un nouveau rendez-vous pour un patient",
			Params: []Param{
				{Name: "patient_name", Description: "Nom complet du patient", Required: true},
				{Name: "patient_phone", Description: "Numéro de téléphone du patient"},
				{Name: "date", Description: "Date au format YYYY-MM-DD", Required: true},
				{Name: "time", Description: "Heure au format HH:MM", Required: true},
				{Name: "notes", Description: "Notes optionnelles"},
			},
		},
		{
			Name:        ToolGetAppointments,
			Description: "Obtenir les rendez-vous pour une date donnée",
			Params: []Param{
				{Name: "date", Description: "Date au format YYYY-MM-DD", Required: true},
			},
		},
		{
			Name:        ToolCancelAppointment,
			Description: "Annuler un rendez-vous existant",
			Params: []Param{
				{Name: "appointment_id", Description: "ID du rendez-vous à annuler", Required: true},
			},
		},
	}
}

// Toolbox runs tool calls against the booking service on behalf of one staff
// member. Failures are reported to the model as results, not Go errors.
type Toolbox struct {
	svc     *booking.Service
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewToolbox creates a toolbox.
func NewToolbox(svc *booking.Service, m *metrics.BookingMetrics, logger *logging.Logger) *Toolbox {
	if logger == nil {
		logger = logging.Default()
	}
	return &Toolbox{svc: svc, metrics: m, logger: logger}
}

// Execute runs one call within the staff scope on ctx.
func (t *Toolbox) Execute(ctx context.Context, call ToolCall) ToolResult {
	staff, _ := tenancy.StaffFromContext(ctx)

	var (
		resp map[string]any
		err  error
	)
	switch call.Name {
	case ToolSearchPatient:
		resp, err = t.searchPatient(ctx, call.Args)
	case ToolCreateAppointment:
		resp, err = t.createAppointment(ctx, staff, call.Args)
	case ToolGetAppointments:
		resp, err = t.getAppointments(ctx, staff, call.Args)
	case ToolCancelAppointment:
		resp, err = t.cancelAppointment(ctx, staff, call.Args)
	default:
		err = apperr.New(apperr.KindInvalidInput, "assistant.tool", "unknown tool "+call.Name)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("clinic.tool", call.Name)))
		t.logger.Warn("assistant tool failed", "tool", call.Name, "doctor_id", staff.DoctorID, "error", err)
		body := apperr.BodyOf(err)
		resp = map[string]any{"error": body.Error, "kind": string(body.Kind)}
		if len(body.Fields) > 0 {
			fields := make(map[string]any, len(body.Fields))
			for k, v := range body.Fields {
				fields[k] = v
			}
			resp["fields"] = fields
		}
	}
	t.metrics.ObserveToolCall(call.Name, outcome)
	return ToolResult{Name: call.Name, Response: resp}
}

func (t *Toolbox) searchPatient(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, err := requiredArg(args, "query")
	if err != nil {
		return nil, err
	}
	found, err := t.svc.SearchPatients(ctx, query)
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(found))
	for _, p := range found {
		list = append(list, patientView(p))
	}
	return map[string]any{"query": query, "patients": list}, nil
}

func (t *Toolbox) createAppointment(ctx context.Context, staff tenancy.Staff, args map[string]any) (map[string]any, error) {
	if staff.DoctorID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "assistant.create_appointment", "no doctor in scope").WithField("field", "doctor_id")
	}
	name, err := requiredArg(args, "patient_name")
	if err != nil {
		return nil, err
	}
	start, err := t.civilTime(args)
	if err != nil {
		return nil, err
	}

	if err := t.scopeDoctor(ctx, staff); err != nil {
		return nil, err
	}
	appt, err := t.svc.Book(ctx, booking.Request{
		DoctorID:   staff.DoctorID,
		NewPatient: &patients.NewPatient{FullName: name, Phone: stringArg(args, "patient_phone")},
		Start:      start,
		Notes:      stringArg(args, "notes"),
		Source:     appointments.SourceAssistant,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": true, "appointment": t.appointmentView(ctx, appt)}, nil
}

func (t *Toolbox) getAppointments(ctx context.Context, staff tenancy.Staff, args map[string]any) (map[string]any, error) {
	if staff.DoctorID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "assistant.get_appointments", "no doctor in scope").WithField("field", "doctor_id")
	}
	raw, err := requiredArg(args, "date")
	if err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation(time.DateOnly, raw, t.svc.Location())
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "assistant.get_appointments", "date must be YYYY-MM-DD").WithField("field", "date")
	}
	if err := t.scopeDoctor(ctx, staff); err != nil {
		return nil, err
	}
	list, err := t.svc.AppointmentsOn(ctx, staff.DoctorID, date)
	if err != nil {
		return nil, err
	}
	views := make([]any, 0, len(list))
	for _, a := range list {
		views = append(views, t.appointmentView(ctx, a))
	}
	return map[string]any{"date": raw, "appointments": views}, nil
}

func (t *Toolbox) cancelAppointment(ctx context.Context, staff tenancy.Staff, args map[string]any) (map[string]any, error) {
	id, err := requiredArg(args, "appointment_id")
	if err != nil {
		return nil, err
	}
	current, err := t.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staff.CanActForDoctor(current.DoctorID, current.ClinicID) {
		return nil, appointments.ErrNotFound
	}
	cancelled, err := t.svc.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"cancelled": true, "appointment": t.appointmentView(ctx, cancelled)}, nil
}

// scopeDoctor reports the doctor in scope as not found unless it belongs to
// the caller's clinic.
func (t *Toolbox) scopeDoctor(ctx context.Context, staff tenancy.Staff) error {
	doctor, err := t.svc.Doctor(ctx, staff.DoctorID)
	if err != nil {
		return err
	}
	if !staff.CanActForDoctor(doctor.ID, doctor.ClinicID) {
		return apperr.New(apperr.KindNotFound, "assistant.scope", "doctor not found").WithField("doctor_id", staff.DoctorID)
	}
	return nil
}

func (t *Toolbox) civilTime(args map[string]any) (time.Time, error) {
	date, err := requiredArg(args, "date")
	if err != nil {
		return time.Time{}, err
	}
	clock, err := requiredArg(args, "time")
	if err != nil {
		return time.Time{}, err
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, t.svc.Location())
	if err != nil {
		return time.Time{}, apperr.New(apperr.KindInvalidInput, "assistant.create_appointment", "date must be YYYY-MM-DD and time HH:MM").WithField("field", "start")
	}
	return start, nil
}

func (t *Toolbox) appointmentView(ctx context.Context, a appointments.Appointment) map[string]any {
	local := a.StartsAt.In(t.svc.Location())
	view := map[string]any{
		"id":               a.ID,
		"date":             local.Format(time.DateOnly),
		"time":             local.Format("15:04"),
		"duration_minutes": a.DurationMinutes,
		"status":           string(a.Status),
		"otp_verified":     a.OTPVerified,
	}
	if a.Notes != "" {
		view["notes"] = a.Notes
	}
	if a.PatientID != "" {
		if p, err := t.svc.Patient(ctx, a.PatientID); err == nil {
			view["patient"] = p.FullName
		} else {
			view["patient"] = "inconnu"
		}
	}
	return view
}

func patientView(p patients.Patient) map[string]any {
	return map[string]any{"id": p.ID, "full_name": p.FullName, "phone": p.Phone}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func requiredArg(args map[string]any, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", apperr.New(apperr.KindInvalidInput, "assistant.tool", key+" is required").WithField("field", key)
	}
	return v, nil
}
