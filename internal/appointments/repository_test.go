package appointments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

var nineAM = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newAppointment(start time.Time, minutes int) Appointment {
	return Appointment{
		ClinicID:        "clinic-1",
		DoctorID:        "doc-1",
		PatientID:       "pat-1",
		StartsAt:        start,
		DurationMinutes: minutes,
		Status:          StatusPending,
		Source:          SourcePublic,
	}
}

func TestAppointmentOverlap(t *testing.T) {
	a := newAppointment(nineAM, 30)
	assert.Equal(t, nineAM.Add(30*time.Minute), a.EndsAt())
	assert.True(t, a.Blocks(nineAM, nineAM.Add(30*time.Minute)))
	assert.True(t, a.Blocks(nineAM.Add(-15*time.Minute), nineAM.Add(15*time.Minute)))
	assert.False(t, a.Blocks(nineAM.Add(30*time.Minute), nineAM.Add(time.Hour)))
	assert.False(t, a.Blocks(nineAM.Add(-30*time.Minute), nineAM))

	a.Status = StatusCancelled
	assert.False(t, a.Blocks(nineAM, nineAM.Add(30*time.Minute)))
}

func TestInMemoryReserveRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	first, err := repo.Reserve(ctx, newAppointment(nineAM, 30), nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	_, err = repo.Reserve(ctx, newAppointment(nineAM.Add(15*time.Minute), 30), nil)
	assert.True(t, errors.Is(err, ErrSlotConflict))
	assert.Equal(t, apperr.KindSlotUnavailable, apperr.KindOf(err))

	_, err = repo.Reserve(ctx, newAppointment(nineAM.Add(30*time.Minute), 30), nil)
	require.NoError(t, err, "adjacent windows do not overlap")

	_, err = repo.UpdateStatus(ctx, first.ID, StatusPending, StatusCancelled)
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, newAppointment(nineAM, 30), nil)
	require.NoError(t, err, "cancelled appointments free their slot")

	all, err := repo.ListForDoctor(ctx, "doc-1", nineAM, nineAM.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 3, "cancelled rows are kept")
}

func TestInMemoryReserveRunsCheckWithOverlapping(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	_, err := repo.Reserve(ctx, newAppointment(nineAM, 30), nil)
	require.NoError(t, err)

	var seen int
	sentinel := errors.New("outside working hours")
	_, err = repo.Reserve(ctx, newAppointment(nineAM, 60), func(overlapping []Appointment) error {
		seen = len(overlapping)
		return sentinel
	})
	assert.Equal(t, 1, seen)
	assert.ErrorIs(t, err, sentinel)
}

func TestInMemoryReserveConcurrentExactlyOneWins(t *testing.T) {
	repo := NewInMemoryRepository()
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Reserve(context.Background(), newAppointment(nineAM, 30), nil)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrSlotConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 19, conflicts.Load())
}

func TestInMemoryUpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	appt, err := repo.Reserve(ctx, newAppointment(nineAM, 30), nil)
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, appt.ID, StatusConfirmed, StatusAttended)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err), "stale from-status is rejected")

	updated, err := repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	_, err = repo.UpdateStatus(ctx, "missing", StatusPending, StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	verified, err := repo.MarkOTPVerified(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, verified.PatientConfirmed())
	assert.Equal(t, StatusConfirmed, verified.Status)
}

var appointmentRowColumns = []string{"id", "clinic_id", "doctor_id", "patient_id", "appointment_datetime", "duration",
	"status", "notes", "otp_verified", "source", "created_at", "updated_at"}

func TestPostgresReserveInsertsInsideLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Now().UTC()
	appt := newAppointment(nineAM, 30)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs("doc-1", appt.StartsAt, appt.EndsAt()).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "clinic-1", "doc-1", "pat-1", appt.StartsAt, appt.EndsAt(), 30, "pending", "", false, "public").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))
	mock.ExpectCommit()

	repo := NewPostgresRepository(mock)
	var checked bool
	got, err := repo.Reserve(context.Background(), appt, func(overlapping []Appointment) error {
		checked = true
		assert.Empty(t, overlapping)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, checked)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReserveMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := newAppointment(nineAM, 30)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs("doc-1", appt.StartsAt, appt.EndsAt()).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectRollback()

	_, err = NewPostgresRepository(mock).Reserve(context.Background(), appt, nil)
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReserveRejectsOverlapWithoutInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := newAppointment(nineAM, 30)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs("doc-1", appt.StartsAt, appt.EndsAt()).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow("a-1", "clinic-1", "doc-1", "pat-9", nineAM, 30, "confirmed", "", false, "staff", now, now))
	mock.ExpectRollback()

	_, err = NewPostgresRepository(mock).Reserve(context.Background(), appt, nil)
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusReportsConcurrentChange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE appointments SET status").
		WithArgs("a-1", "pending", "confirmed").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))
	mock.ExpectQuery("FROM appointments WHERE id").
		WithArgs("a-1").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow("a-1", "clinic-1", "doc-1", "pat-1", nineAM, 30, "cancelled", "", false, "public", now, now))

	_, err = NewPostgresRepository(mock).UpdateStatus(context.Background(), "a-1", StatusPending, StatusConfirmed)
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInvalidTransition, appErr.Kind)
	assert.Equal(t, "cancelled", appErr.Fields["from"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusRejectsIllegalTransitionWithoutQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresRepository(mock).UpdateStatus(context.Background(), "a-1", StatusCancelled, StatusConfirmed)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
