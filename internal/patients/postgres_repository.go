package patients

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-booking/internal/database"
)

const patientColumns = `id, full_name, phone, COALESCE(email, ''), date_of_birth, COALESCE(notes, ''), created_at, updated_at`

// PostgresRepository reads and writes the patients table.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	if db == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 || limit > SearchLimit {
		limit = SearchLimit
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	sql := `SELECT ` + patientColumns + `
		FROM patients
		WHERE full_name ILIKE $1 OR phone ILIKE $1
		ORDER BY full_name
		LIMIT $2`
	rows, err := r.db.Query(ctx, sql, pattern, limit)
	if err != nil {
		return nil, database.Classify("patients: search", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, database.Classify("patients: scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify("patients: iterate", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Patient, error) {
	return r.one(ctx, "patients: get", `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Patient, error) {
	return r.one(ctx, "patients: find by phone",
		`SELECT `+patientColumns+` FROM patients WHERE phone = $1 ORDER BY created_at LIMIT 1`, NormalizePhone(phone))
}

func (r *PostgresRepository) FindByName(ctx context.Context, name string) (Patient, error) {
	return r.one(ctx, "patients: find by name",
		`SELECT `+patientColumns+` FROM patients WHERE full_name ILIKE $1 ORDER BY created_at LIMIT 1`,
		"%"+escapeLike(strings.TrimSpace(name))+"%")
}

func (r *PostgresRepository) Create(ctx context.Context, in NewPatient) (Patient, error) {
	if err := in.Validate(); err != nil {
		return Patient{}, err
	}
	sql := `
		INSERT INTO patients (id, full_name, phone, email, date_of_birth, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''))
		RETURNING ` + patientColumns
	return r.one(ctx, "patients: create", sql,
		uuid.NewString(),
		strings.TrimSpace(in.FullName),
		NormalizePhone(in.Phone),
		strings.TrimSpace(in.Email),
		in.DateOfBirth,
		in.Notes,
	)
}

func (r *PostgresRepository) one(ctx context.Context, op, sql string, args ...any) (Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, database.Classify(op, err)
	}
	return p, nil
}

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Phone, &p.Email, &p.DateOfBirth, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
