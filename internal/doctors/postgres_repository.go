package doctors

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/clinic-booking/internal/database"
)

const doctorColumns = `id, clinic_id, slug, COALESCE(title, ''), full_name, COALESCE(specialty, ''), COALESCE(bio, ''),
	consultation_duration, is_active, created_at, updated_at`

const codeForeignKeyViolation = "23503"

const clinicColumns = `id, name, COALESCE(address, ''), COALESCE(city, ''), COALESCE(phone, ''), created_at, updated_at`

// PostgresRepository reads and writes the clinics and doctors tables.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	if db == nil {
		panic("doctors: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Doctor, error) {
	return r.one(ctx, "doctors: get", `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (Doctor, error) {
	return r.one(ctx, "doctors: get by slug", `SELECT `+doctorColumns+` FROM doctors WHERE slug = $1`, slug)
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Doctor, error) {
	query := `SELECT ` + doctorColumns + `
		FROM doctors
		WHERE ($1 = '' OR clinic_id = $1) AND (NOT $2::boolean OR is_active)
		ORDER BY full_name, id`
	rows, err := r.db.Query(ctx, query, filter.ClinicID, filter.ActiveOnly)
	if err != nil {
		return nil, database.Classify("doctors: list", err)
	}
	defer rows.Close()

	out := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, database.Classify("doctors: scan", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify("doctors: iterate", err)
	}
	return out, nil
}

// Save upserts by id. The update only applies when the stored row is in the
// same clinic, so a doctor cannot be moved between clinics through Save.
func (r *PostgresRepository) Save(ctx context.Context, d Doctor) (Doctor, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Doctor{}, err
	}
	query := `
		INSERT INTO doctors (id, clinic_id, slug, title, full_name, specialty, bio, consultation_duration, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			full_name = EXCLUDED.full_name,
			specialty = EXCLUDED.specialty,
			bio = EXCLUDED.bio,
			consultation_duration = EXCLUDED.consultation_duration,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		WHERE doctors.clinic_id = EXCLUDED.clinic_id
		RETURNING ` + doctorColumns
	saved, err := scanDoctor(r.db.QueryRow(ctx, query,
		d.ID, d.ClinicID, d.Slug, d.Title, d.FullName, d.Specialty, d.Bio, d.ConsultationMinutes, d.Active))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Doctor{}, ErrNotFound
	case err == nil:
		return saved, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return Doctor{}, ErrClinicNotFound
	}
	err = database.Classify("doctors: save", err)
	if errors.Is(err, database.ErrConflict) {
		return Doctor{}, ErrSlugTaken
	}
	return Doctor{}, err
}

func (r *PostgresRepository) GetClinic(ctx context.Context, id string) (Clinic, error) {
	c, err := scanClinic(r.db.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Clinic{}, ErrClinicNotFound
	}
	if err != nil {
		return Clinic{}, database.Classify("doctors: get clinic", err)
	}
	return c, nil
}

func (r *PostgresRepository) SaveClinic(ctx context.Context, c Clinic) (Clinic, error) {
	if err := c.Validate(); err != nil {
		return Clinic{}, err
	}
	query := `
		INSERT INTO clinics (id, name, address, city, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			phone = EXCLUDED.phone,
			updated_at = now()
		RETURNING ` + clinicColumns
	saved, err := scanClinic(r.db.QueryRow(ctx, query, c.ID, c.Name, c.Address, c.City, c.Phone))
	if err != nil {
		return Clinic{}, database.Classify("doctors: save clinic", err)
	}
	return saved, nil
}

func (r *PostgresRepository) one(ctx context.Context, op, sql string, args ...any) (Doctor, error) {
	d, err := scanDoctor(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Doctor{}, ErrNotFound
	}
	if err != nil {
		return Doctor{}, database.Classify(op, err)
	}
	return d, nil
}

func scanDoctor(row pgx.Row) (Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.ClinicID, &d.Slug, &d.Title, &d.FullName, &d.Specialty, &d.Bio,
		&d.ConsultationMinutes, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func scanClinic(row pgx.Row) (Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
