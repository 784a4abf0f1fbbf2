package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/database"
)

// PostgresRepository stores rules in the availability_rules table.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository wraps a pgx pool (or pgxmock pool in tests).
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	if db == nil {
		panic("schedule: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// ListRules loads every rule of the doctor, active or not.
func (r *PostgresRepository) ListRules(ctx context.Context, doctorID string) ([]WeeklyRule, error) {
	query := `
		SELECT id, doctor_id, day_of_week, is_active, start_time::text, end_time::text,
			break_start::text, break_end::text, slot_duration
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY day_of_week
	`
	rows, err := r.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, database.Classify("schedule: list rules", err)
	}
	defer rows.Close()

	var out []WeeklyRule
	for rows.Next() {
		var (
			rule                 WeeklyRule
			day                  int
			start, end           string
			breakStart, breakEnd *string
		)
		if err := rows.Scan(&rule.ID, &rule.DoctorID, &day, &rule.Active, &start, &end, &breakStart, &breakEnd, &rule.SlotMinutes); err != nil {
			return nil, database.Classify("schedule: scan rule", err)
		}
		rule.DayOfWeek = time.Weekday(day)
		if rule.Start, err = ParseClock(start); err != nil {
			return nil, fmt.Errorf("schedule: stored start_time: %w", err)
		}
		if rule.End, err = ParseClock(end); err != nil {
			return nil, fmt.Errorf("schedule: stored end_time: %w", err)
		}
		if breakStart != nil && breakEnd != nil {
			bs, err := ParseClock(*breakStart)
			if err != nil {
				return nil, fmt.Errorf("schedule: stored break_start: %w", err)
			}
			be, err := ParseClock(*breakEnd)
			if err != nil {
				return nil, fmt.Errorf("schedule: stored break_end: %w", err)
			}
			rule.BreakStart, rule.BreakEnd = &bs, &be
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify("schedule: iterate rules", err)
	}
	return out, nil
}

// SaveRule validates and upserts on (doctor_id, day_of_week).
func (r *PostgresRepository) SaveRule(ctx context.Context, rule WeeklyRule) (WeeklyRule, error) {
	if err := rule.Validate(); err != nil {
		return WeeklyRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	query := `
		INSERT INTO availability_rules (id, doctor_id, day_of_week, is_active, start_time, end_time, break_start, break_end, slot_duration)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7::time, $8::time, $9)
		ON CONFLICT (doctor_id, day_of_week)
		DO UPDATE SET is_active = EXCLUDED.is_active,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			break_start = EXCLUDED.break_start,
			break_end = EXCLUDED.break_end,
			slot_duration = EXCLUDED.slot_duration
		RETURNING id
	`
	var id string
	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.DoctorID,
		int(rule.DayOfWeek),
		rule.Active,
		rule.Start.String(),
		rule.End.String(),
		clockParam(rule.BreakStart),
		clockParam(rule.BreakEnd),
		rule.SlotMinutes,
	).Scan(&id)
	if err != nil {
		return WeeklyRule{}, database.Classify("schedule: save rule", err)
	}
	rule.ID = id
	return rule, nil
}

func clockParam(c *Clock) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}
