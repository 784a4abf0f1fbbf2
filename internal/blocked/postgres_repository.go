package blocked

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-booking/internal/database"
)

// PostgresRepository stores periods in the blocked_times table.
type PostgresRepository struct {
	db database.PgxPool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db database.PgxPool) *PostgresRepository {
	if db == nil {
		panic("blocked: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, doctorID string, from, to time.Time) ([]Period, error) {
	query := `
		SELECT id, doctor_id, start_datetime, end_datetime, COALESCE(reason, ''), created_at
		FROM blocked_times
		WHERE doctor_id = $1 AND start_datetime < $3 AND end_datetime > $2
		ORDER BY start_datetime
	`
	rows, err := r.db.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, database.Classify("blocked: list", err)
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.DoctorID, &p.Start, &p.End, &p.Reason, &p.CreatedAt); err != nil {
			return nil, database.Classify("blocked: scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify("blocked: iterate", err)
	}
	return out, nil
}

// Create inserts under the same per-doctor advisory lock that appointment
// reservations take, so a booking in flight sees the period or commits first.
func (r *PostgresRepository) Create(ctx context.Context, p Period) (Period, error) {
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	p.ID = uuid.NewString()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Period{}, database.Classify("blocked: begin create", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, p.DoctorID); err != nil {
		return Period{}, database.Classify("blocked: lock doctor", err)
	}
	query := `
		INSERT INTO blocked_times (id, doctor_id, start_datetime, end_datetime, reason)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query, p.ID, p.DoctorID, p.Start, p.End, p.Reason).Scan(&p.CreatedAt); err != nil {
		return Period{}, database.Classify("blocked: create", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Period{}, database.Classify("blocked: commit create", err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, doctorID, id string) error {
	var deleted string
	err := r.db.QueryRow(ctx, `DELETE FROM blocked_times WHERE id = $1 AND doctor_id = $2 RETURNING id`, id, doctorID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return database.Classify("blocked: delete", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, doctorID string, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM blocked_times WHERE doctor_id = $1 AND end_datetime <= $2`, doctorID, before)
	if err != nil {
		return 0, database.Classify("blocked: delete expired", err)
	}
	return tag.RowsAffected(), nil
}
