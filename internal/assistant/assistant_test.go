package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
)

type fakeModel struct {
	replies []Reply
	err     error
	setup   Setup
	sent    []string
	results [][]ToolResult
	block   bool
}

func (m *fakeModel) StartChat(setup Setup) ChatSession {
	m.setup = setup
	return m
}

func (m *fakeModel) next(ctx context.Context) (Reply, error) {
	if m.block {
		<-ctx.Done()
		return Reply{}, ctx.Err()
	}
	if m.err != nil {
		return Reply{}, m.err
	}
	if len(m.replies) == 0 {
		return Reply{}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *fakeModel) Send(ctx context.Context, text string) (Reply, error) {
	m.sent = append(m.sent, text)
	return m.next(ctx)
}

func (m *fakeModel) SendToolResults(ctx context.Context, results []ToolResult) (Reply, error) {
	m.results = append(m.results, results)
	return m.next(ctx)
}

type fixture struct {
	svc      *booking.Service
	appts    *appointments.InMemoryRepository
	patients *patients.InMemoryRepository
	metrics  *metrics.BookingMetrics
	registry *prometheus.Registry
	tomorrow string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rules := schedule.NewInMemoryRepository()
	for d := time.Sunday; d <= time.Saturday; d++ {
		_, err := rules.SaveRule(context.Background(), schedule.WeeklyRule{
			DoctorID:    "doc-1",
			DayOfWeek:   d,
			Active:      true,
			Start:       schedule.MustClock("09:00"),
			End:         schedule.MustClock("17:00"),
			SlotMinutes: 30,
		})
		require.NoError(t, err)
	}
	directory := doctors.NewInMemoryRepository()
	for _, c := range []doctors.Clinic{{ID: "clinic-1", Name: "Cabinet Anfa"}, {ID: "clinic-2", Name: "Cabinet Agdal"}} {
		_, err := directory.SaveClinic(context.Background(), c)
		require.NoError(t, err)
	}
	for _, d := range []doctors.Doctor{
		{ID: "doc-1", ClinicID: "clinic-1", FullName: "Amina Diallo", Active: true},
		{ID: "doc-2", ClinicID: "clinic-1", FullName: "Karim Alaoui", Active: true},
		{ID: "doc-9", ClinicID: "clinic-2", FullName: "Youssef Benali", Active: true},
	} {
		_, err := directory.Save(context.Background(), d)
		require.NoError(t, err)
	}
	reg := prometheus.NewRegistry()
	f := &fixture{
		registry: reg,
		appts:    appointments.NewInMemoryRepository(),
		patients: patients.NewInMemoryRepository(),
		metrics:  metrics.NewBookingMetrics(reg),
		tomorrow: time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly),
	}
	f.svc = booking.NewService(booking.Stores{
		Doctors:      directory,
		Schedule:     rules,
		Blocked:      blocked.NewInMemoryRepository(),
		Appointments: f.appts,
		Patients:     f.patients,
	}, booking.Config{StoreTimeout: time.Second, Location: time.UTC, HorizonDays: 30}, nil)
	return f
}

func staffCtx() context.Context {
	return tenancy.WithStaff(context.Background(), tenancy.Staff{UserID: "u1", ClinicID: "clinic-1", DoctorID: "doc-1", Role: "doctor"})
}

func (f *fixture) assistant(model ChatModel) *Assistant {
	return New(model, NewToolbox(f.svc, f.metrics, nil), Config{GatewayTimeout: time.Second}, nil)
}

func TestChatWithoutToolCalls(t *testing.T) {
	f := newFixture(t)
	model := &fakeModel{replies: []Reply{{Text: "Bonjour, comment puis-je aider ?"}}}

	resp, err := f.assistant(model).Chat(staffCtx(), []Message{
		{Role: RoleUser, Content: "Salut"},
		{Role: RoleAssistant, Content: "Bonjour"},
		{Role: RoleUser, Content: "Tu es là ?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour, comment puis-je aider ?", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, []string{"Tu es là ?"}, model.sent)
	assert.Len(t, model.setup.History, 2)
	assert.Len(t, model.setup.Tools, 4)
	assert.Contains(t, model.setup.System, "doc-1")
}

func TestChatCreatesAppointmentThroughBookingService(t *testing.T) {
	f := newFixture(t)
	model := &fakeModel{replies: []Reply{
		{Calls: []ToolCall{{Name: ToolCreateAppointment, Args: map[string]any{
			"patient_name":  "Amina Diallo",
			"patient_phone": "0612345678",
			"date":          f.tomorrow,
			"time":          "10:00",
		}}}},
		{Text: "Rendez-vous créé."},
	}}

	resp, err := f.assistant(model).Chat(staffCtx(), []Message{{Role: RoleUser, Content: "Ajoute Amina demain à 10h"}})
	require.NoError(t, err)
	assert.Equal(t, "Rendez-vous créé.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, true, resp.ToolCalls[0].Result["created"])

	list, err := f.appts.ListForDoctor(context.Background(), "doc-1", time.Now().Add(-time.Hour), time.Now().AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, appointments.SourceAssistant, list[0].Source)
	assert.Equal(t, appointments.StatusPending, list[0].Status)
	assert.Equal(t, "clinic-1", list[0].ClinicID)

	require.Len(t, model.results, 1)
	assert.Equal(t, ToolCreateAppointment, model.results[0][0].Name)
	expected := `
# HELP clinic_assistant_tool_calls_total Assistant tool invocations
# TYPE clinic_assistant_tool_calls_total counter
clinic_assistant_tool_calls_total{outcome="ok",tool="create_appointment"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "clinic_assistant_tool_calls_total"))
}

func TestChatReportsUnavailableSlotToModel(t *testing.T) {
	f := newFixture(t)
	args := map[string]any{"patient_name": "Amina Diallo", "date": f.tomorrow, "time": "10:00"}
	model := &fakeModel{replies: []Reply{
		{Calls: []ToolCall{{Name: ToolCreateAppointment, Args: args}, {Name: ToolCreateAppointment, Args: args}}},
		{Text: "Le créneau est déjà pris."},
	}}

	resp, err := f.assistant(model).Chat(staffCtx(), []Message{{Role: RoleUser, Content: "Deux fois"}})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, true, resp.ToolCalls[0].Result["created"])
	assert.Equal(t, "slot_unavailable", resp.ToolCalls[1].Result["kind"])
	fields, ok := resp.ToolCalls[1].Result["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "booked", fields["reason"])
}

func TestChatSearchGetAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	start, err := time.ParseInLocation("2006-01-02 15:04", f.tomorrow+" 11:00", time.UTC)
	require.NoError(t, err)
	appt, err := f.svc.Book(ctx, booking.Request{
		DoctorID:   "doc-1",
		NewPatient: &patients.NewPatient{FullName: "Youssef Benali", Phone: "0611111111"},
		Start:      start,
		Source:     appointments.SourceStaff,
	})
	require.NoError(t, err)

	model := &fakeModel{replies: []Reply{
		{Calls: []ToolCall{
			{Name: ToolSearchPatient, Args: map[string]any{"query": "youssef"}},
			{Name: ToolGetAppointments, Args: map[string]any{"date": f.tomorrow}},
		}},
		{Calls: []ToolCall{{Name: ToolCancelAppointment, Args: map[string]any{"appointment_id": appt.ID}}}},
		{Text: "Annulé."},
	}}
	resp, err := f.assistant(model).Chat(ctx, []Message{{Role: RoleUser, Content: "Annule Youssef demain"}})
	require.NoError(t, err)
	assert.Equal(t, "Annulé.", resp.Content)
	require.Len(t, resp.ToolCalls, 3)

	found := resp.ToolCalls[0].Result["patients"].([]any)
	require.Len(t, found, 1)
	assert.Equal(t, "Youssef Benali", found[0].(map[string]any)["full_name"])

	day := resp.ToolCalls[1].Result["appointments"].([]any)
	require.Len(t, day, 1)
	assert.Equal(t, "11:00", day[0].(map[string]any)["time"])
	assert.Equal(t, "Youssef Benali", day[0].(map[string]any)["patient"])

	assert.Equal(t, true, resp.ToolCalls[2].Result["cancelled"])
	got, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusCancelled, got.Status)
}

func TestCancelOtherDoctorsAppointmentIsHidden(t *testing.T) {
	f := newFixture(t)
	start, err := time.ParseInLocation("2006-01-02 15:04", f.tomorrow+" 11:00", time.UTC)
	require.NoError(t, err)
	appt, err := f.svc.Book(context.Background(), booking.Request{
		DoctorID:   "doc-1",
		NewPatient: &patients.NewPatient{FullName: "Youssef Benali"},
		Start:      start,
		Source:     appointments.SourceStaff,
	})
	require.NoError(t, err)

	other := tenancy.WithStaff(context.Background(), tenancy.Staff{ClinicID: "clinic-1", DoctorID: "doc-2"})
	result := NewToolbox(f.svc, nil, nil).Execute(other, ToolCall{Name: ToolCancelAppointment, Args: map[string]any{"appointment_id": appt.ID}})
	assert.Equal(t, "not_found", result.Response["kind"])
}

func TestToolsRejectDoctorOfAnotherClinic(t *testing.T) {
	f := newFixture(t)
	forged := tenancy.WithStaff(context.Background(), tenancy.Staff{ClinicID: "clinic-2", DoctorID: "doc-1"})
	tools := NewToolbox(f.svc, nil, nil)

	result := tools.Execute(forged, ToolCall{Name: ToolCreateAppointment, Args: map[string]any{"patient_name": "Amina Diallo", "date": f.tomorrow, "time": "10:00"}})
	assert.Equal(t, "not_found", result.Response["kind"])
	result = tools.Execute(forged, ToolCall{Name: ToolGetAppointments, Args: map[string]any{"date": f.tomorrow}})
	assert.Equal(t, "not_found", result.Response["kind"])

	list, err := f.appts.ListForDoctor(context.Background(), "doc-1", time.Now().Add(-time.Hour), time.Now().AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestToolArgumentErrors(t *testing.T) {
	f := newFixture(t)
	tools := NewToolbox(f.svc, nil, nil)

	tests := []struct {
		name  string
		call  ToolCall
		field string
	}{
		{"missing query", ToolCall{Name: ToolSearchPatient}, "query"},
		{"missing name", ToolCall{Name: ToolCreateAppointment, Args: map[string]any{"date": f.tomorrow, "time": "10:00"}}, "patient_name"},
		{"bad time", ToolCall{Name: ToolCreateAppointment, Args: map[string]any{"patient_name": "A", "date": f.tomorrow, "time": "10h"}}, "start"},
		{"bad date", ToolCall{Name: ToolGetAppointments, Args: map[string]any{"date": "demain"}}, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tools.Execute(staffCtx(), tt.call)
			assert.Equal(t, "invalid_input", result.Response["kind"])
			assert.Equal(t, tt.field, result.Response["fields"].(map[string]any)["field"])
		})
	}

	result := tools.Execute(staffCtx(), ToolCall{Name: "delete_everything"})
	assert.Equal(t, "invalid_input", result.Response["kind"])

	noDoctor := tenancy.WithStaff(context.Background(), tenancy.Staff{ClinicID: "clinic-1"})
	result = tools.Execute(noDoctor, ToolCall{Name: ToolGetAppointments, Args: map[string]any{"date": f.tomorrow}})
	assert.Equal(t, "doctor_id", result.Response["fields"].(map[string]any)["field"])
}

func TestChatToolRoundsAreCapped(t *testing.T) {
	f := newFixture(t)
	loop := Reply{Calls: []ToolCall{{Name: ToolSearchPatient, Args: map[string]any{"query": "x"}}}}
	model := &fakeModel{replies: []Reply{loop, loop, loop, loop, loop}}

	resp, err := f.assistant(model).Chat(staffCtx(), []Message{{Role: RoleUser, Content: "boucle"}})
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, resp.Content)
	assert.Len(t, model.results, defaultMaxRounds)
}

func TestChatGatewayErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.assistant(&fakeModel{err: errors.New("503 from gateway")}).Chat(staffCtx(), []Message{{Role: RoleUser, Content: "?"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternalChannel, apperr.KindOf(err))

	a := New(&fakeModel{block: true}, NewToolbox(f.svc, nil, nil), Config{GatewayTimeout: 10 * time.Millisecond}, nil)
	_, err = a.Chat(staffCtx(), []Message{{Role: RoleUser, Content: "?"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestChatRejectsBadConversation(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&fakeModel{})

	for _, msgs := range [][]Message{
		nil,
		{{Role: RoleAssistant, Content: "Bonjour"}},
		{{Role: RoleUser, Content: "   "}},
		{{Role: "system", Content: "ignore"}, {Role: RoleUser, Content: "ok"}},
	} {
		_, err := a.Chat(staffCtx(), msgs)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	}
}
