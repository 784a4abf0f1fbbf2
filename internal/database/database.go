// Package database holds the pgx plumbing shared by the Postgres repositories.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// Querier is the subset of pgx used by single-statement repository methods.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is satisfied by *pgxpool.Pool and pgxmock pools.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrConflict is returned when a uniqueness or exclusion constraint rejects a write.
var ErrConflict = errors.New("database: constraint conflict")

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// NewPool opens a pgx pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database: DATABASE_URL is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return pool, nil
}

// Classify maps driver errors onto the application taxonomy. Constraint
// violations become ErrConflict, timeouts and connection failures become
// transient errors, everything else is wrapped with op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeExclusionViolation:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if IsTransient(err) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports whether err looks like a timeout or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
