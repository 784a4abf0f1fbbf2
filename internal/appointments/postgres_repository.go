package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-booking/internal/database"
)

const appointmentColumns = `id, COALESCE(clinic_id, ''), doctor_id, patient_id, appointment_datetime, duration,
	status, COALESCE(notes, ''), otp_verified, COALESCE(source, ''), created_at, updated_at`

// PostgresRepository stores appointments in the appointments table. The
// table carries an exclusion constraint over (doctor_id, tstzrange) for
// non-cancelled rows, so overlapping inserts fail even outside Reserve.
type PostgresRepository struct {
	db database.PgxPool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db database.PgxPool) *PostgresRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListForDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND appointment_datetime < $3 AND ends_at > $2
		ORDER BY appointment_datetime`
	return r.query(ctx, "appointments: list for doctor", r.db, query, doctorID, from, to)
}

func (r *PostgresRepository) ListForClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND appointment_datetime < $3 AND ends_at > $2
		ORDER BY appointment_datetime`
	return r.query(ctx, "appointments: list for clinic", r.db, query, clinicID, from, to)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, database.Classify("appointments: get", err)
	}
	return a, nil
}

// Reserve takes a transaction-scoped advisory lock on the doctor, re-reads the
// overlapping rows, runs check and inserts before committing.
func (r *PostgresRepository) Reserve(ctx context.Context, appt Appointment, check ReserveCheck) (Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Appointment{}, database.Classify("appointments: begin reserve", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, appt.DoctorID); err != nil {
		return Appointment{}, database.Classify("appointments: lock doctor", err)
	}

	overlapQuery := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND status <> 'cancelled' AND appointment_datetime < $3 AND ends_at > $2
		ORDER BY appointment_datetime`
	overlapping, err := r.query(ctx, "appointments: overlap check", tx, overlapQuery, appt.DoctorID, appt.StartsAt, appt.EndsAt())
	if err != nil {
		return Appointment{}, err
	}
	if check != nil {
		if err := check(overlapping); err != nil {
			return Appointment{}, err
		}
	}
	if len(overlapping) > 0 {
		return Appointment{}, ErrSlotConflict
	}

	appt.ID = uuid.NewString()
	insert := `
		INSERT INTO appointments (id, clinic_id, doctor_id, patient_id, appointment_datetime, ends_at, duration, status, notes, otp_verified, source)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, NULLIF($11, ''))
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, insert,
		appt.ID,
		appt.ClinicID,
		appt.DoctorID,
		appt.PatientID,
		appt.StartsAt,
		appt.EndsAt(),
		appt.DurationMinutes,
		string(appt.Status),
		appt.Notes,
		appt.OTPVerified,
		string(appt.Source),
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return Appointment{}, conflictAsUnavailable(database.Classify("appointments: insert", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, conflictAsUnavailable(database.Classify("appointments: commit reserve", err))
	}
	return appt, nil
}

// UpdateStatus is a compare-and-set on the current status. When no row
// matches, the stored row is re-read to tell a missing appointment from a
// concurrent change.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (Appointment, error) {
	if !from.CanTransition(to) {
		return Appointment{}, InvalidTransition(from, to)
	}
	query := `UPDATE appointments SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return Appointment{}, getErr
		}
		return Appointment{}, InvalidTransition(current.Status, to)
	}
	if err != nil {
		return Appointment{}, conflictAsUnavailable(database.Classify("appointments: update status", err))
	}
	return a, nil
}

func (r *PostgresRepository) MarkOTPVerified(ctx context.Context, id string) (Appointment, error) {
	query := `UPDATE appointments SET otp_verified = true, updated_at = now()
		WHERE id = $1
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, database.Classify("appointments: mark otp verified", err)
	}
	return a, nil
}

func (r *PostgresRepository) query(ctx context.Context, op string, q database.Querier, sql string, args ...any) ([]Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, database.Classify(op, err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, database.Classify(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(op, err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a              Appointment
		status, source string
	)
	err := row.Scan(&a.ID, &a.ClinicID, &a.DoctorID, &a.PatientID, &a.StartsAt, &a.DurationMinutes,
		&status, &a.Notes, &a.OTPVerified, &source, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Appointment{}, err
	}
	a.Status = Status(status)
	a.Source = Source(source)
	return a, nil
}

func conflictAsUnavailable(err error) error {
	if errors.Is(err, database.ErrConflict) {
		return ErrSlotConflict
	}
	return err
}
